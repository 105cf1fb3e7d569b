package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/notify"
	"github.com/spec-kit/sla-engine/internal/repository"
)

// NotificationService turns SLA events into email jobs and ticket notes.
type NotificationService struct {
	dispatcher events.Dispatcher
	dedup      notify.Deduper
	emails     notify.EmailQueue
	messages   repository.TicketMessageRepository
	clock      clock.Clock
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(
	dispatcher events.Dispatcher,
	dedup notify.Deduper,
	emails notify.EmailQueue,
	messages repository.TicketMessageRepository,
	clk clock.Clock,
	logger *zap.Logger,
	cfg config.NotificationConfig,
) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		dedup:      dedup,
		emails:     emails,
		messages:   messages,
		clock:      clk,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLAWarning, n.handleSLAEvent)
	n.dispatcher.Subscribe(events.EventSLABreach, n.handleSLAEvent)
	n.dispatcher.Subscribe(events.EventSLAEscalate, n.handleSLAEvent)
}

func (n *NotificationService) handleSLAEvent(ctx context.Context, event events.Event) error {
	notification, ok := events.ToNotification(event)
	if !ok {
		return fmt.Errorf("event %s carries no sla payload", event.ID)
	}
	logger := n.logger.With(
		zap.String("ticket_id", notification.TicketID),
		zap.String("dimension", string(notification.Dimension)),
		zap.String("kind", string(notification.Kind)))

	key := notification.DedupKey()
	acquired, err := n.dedup.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("claim sla alert %s: %w", key, err)
	}
	if !acquired {
		logger.Debug("sla alert already delivered")
		return nil
	}

	if err := n.sendEmail(ctx, notification); err != nil {
		if releaseErr := n.dedup.Release(ctx, key); releaseErr != nil {
			logger.Error("release sla alert claim", zap.Error(releaseErr))
		}
		return err
	}

	if notification.Kind == domain.EventKindBreach {
		n.addBreachNote(ctx, notification, logger)
	}
	n.sendWebhookNotificationStub(notification, logger)

	logger.Info("sla alert delivered", zap.String("event_id", notification.ID))
	return nil
}

func (n *NotificationService) sendEmail(ctx context.Context, notification domain.NotificationEvent) error {
	template, priority, ok := notify.TemplateFor(notification.Kind)
	if !ok {
		return fmt.Errorf("no email template for sla kind %q", notification.Kind)
	}
	job := notify.EmailJob{
		ID:        notification.ID,
		Template:  template,
		Priority:  priority,
		From:      n.cfg.EmailFrom,
		TicketID:  notification.TicketID,
		EntityID:  notification.EntityID,
		Dimension: notification.Dimension,
		DueAt:     notification.DueAt,
		QueuedAt:  n.clock.Now(),
	}
	if err := n.emails.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s email: %w", template, err)
	}
	return nil
}

// addBreachNote leaves an internal note on the ticket. Failures are logged
// only; the alert itself has already been queued.
func (n *NotificationService) addBreachNote(ctx context.Context, notification domain.NotificationEvent, logger *zap.Logger) {
	if n.messages == nil {
		return
	}
	msg := domain.NewSystemNote(notification.TicketID, notification.DedupKey(), BreachNote(notification))
	added, err := n.messages.AddNote(ctx, msg)
	if err != nil {
		logger.Error("add sla breach note", zap.Error(err))
		return
	}
	if !added {
		logger.Debug("sla breach note already present")
	}
}

// BreachNote renders the internal note written when a dimension breaches.
func BreachNote(notification domain.NotificationEvent) string {
	dimension := string(notification.Dimension)
	if dimension != "" {
		dimension = strings.ToUpper(dimension[:1]) + dimension[1:]
	}
	return fmt.Sprintf("SLA BREACH: %s SLA exceeded for this ticket. Due date was: %s",
		dimension, notification.DueAt.UTC().Format(time.RFC3339))
}

func (n *NotificationService) sendWebhookNotificationStub(notification domain.NotificationEvent, logger *zap.Logger) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_id", notification.ID))
}
