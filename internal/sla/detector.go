package sla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
)

var (
	// ErrConflict is returned when a ticket kept changing under the detector.
	ErrConflict = errors.New("sla: ticket changed concurrently")
	// ErrDueDatesFrozen is returned when due dates may no longer be recomputed.
	ErrDueDatesFrozen = errors.New("sla: due dates are frozen")
)

const (
	DefaultWarningRatio = 0.2
	DefaultEmitTimeout  = 5 * time.Second
	casAttempts         = 2
)

// DetectorConfig tunes warning thresholds and emission.
type DetectorConfig struct {
	// WarningLead is a fixed lead time; when positive it overrides WarningRatio.
	WarningLead time.Duration
	// WarningRatio is the share of the SLA window, counted back from the due
	// instant, during which a dimension is in warning.
	WarningRatio float64
	EmitTimeout  time.Duration
}

// CheckResult summarizes the work done for one ticket.
type CheckResult struct {
	TicketID     string
	Committed    bool
	Events       []domain.NotificationEvent
	Conflicts    int
	EmitFailures int
}

// Detector classifies tickets, commits transitions and hands the resulting
// events to the emitter after commit.
type Detector struct {
	tickets TicketStore
	rules   RuleSource
	outbox  Outbox
	emitter Emitter
	clock   clock.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     DetectorConfig
}

// DetectorDependencies wires a Detector.
type DetectorDependencies struct {
	Tickets TicketStore
	Rules   RuleSource
	Outbox  Outbox
	Emitter Emitter
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewDetector builds a detector.
func NewDetector(deps DetectorDependencies, cfg DetectorConfig) *Detector {
	if cfg.WarningRatio <= 0 || cfg.WarningRatio >= 1 {
		cfg.WarningRatio = DefaultWarningRatio
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = DefaultEmitTimeout
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Detector{
		tickets: deps.Tickets,
		rules:   deps.Rules,
		outbox:  deps.Outbox,
		emitter: deps.Emitter,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		cfg:     cfg,
	}
}

// RuleCache memoizes rule lookups for the duration of one scan.
type RuleCache struct {
	mu    sync.Mutex
	rules map[string]*domain.SLARule
}

// NewRuleCache returns an empty cache.
func NewRuleCache() *RuleCache {
	return &RuleCache{rules: make(map[string]*domain.SLARule)}
}

func (c *RuleCache) get(ctx context.Context, source RuleSource, id string) (*domain.SLARule, error) {
	c.mu.Lock()
	rule, ok := c.rules[id]
	c.mu.Unlock()
	if ok {
		return rule, nil
	}
	rule, err := source.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		rule, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rules[id] = rule
	c.mu.Unlock()
	return rule, nil
}

// LeadsFor computes the warning lead per dimension for a ticket.
func (d *Detector) LeadsFor(ctx context.Context, t *domain.Ticket, cache *RuleCache) Leads {
	if d.cfg.WarningLead > 0 {
		return Leads{Response: d.cfg.WarningLead, Resolution: d.cfg.WarningLead}
	}
	var rule *domain.SLARule
	if t.SLARuleID != nil && d.rules != nil {
		if cache == nil {
			cache = NewRuleCache()
		}
		var err error
		if rule, err = cache.get(ctx, d.rules, *t.SLARuleID); err != nil {
			d.logger.Warn("rule lookup failed, deriving warning lead from due dates",
				zap.String("ticket_id", t.ID),
				zap.String("rule_id", *t.SLARuleID),
				zap.Error(err))
		}
	}
	return Leads{
		Response:   d.lead(rule, domain.DimensionResponse, t.CreatedAt, t.SLAResponseDue),
		Resolution: d.lead(rule, domain.DimensionResolution, t.CreatedAt, t.SLAResolutionDue),
	}
}

func (d *Detector) lead(rule *domain.SLARule, dim domain.Dimension, created time.Time, due *time.Time) time.Duration {
	if rule != nil {
		if budget := rule.DurationFor(dim); budget != nil && *budget > 0 {
			return time.Duration(float64(*budget) * d.cfg.WarningRatio)
		}
	}
	if due == nil || !due.After(created) {
		return 0
	}
	return time.Duration(float64(due.Sub(created)) * d.cfg.WarningRatio)
}

// CheckTicket classifies one ticket and commits any transition. On a version
// conflict the ticket is re-read and classified once more; a second conflict
// returns ErrConflict and leaves the ticket for the next scan.
func (d *Detector) CheckTicket(ctx context.Context, ticket domain.Ticket, cache *RuleCache) (result CheckResult, err error) {
	ctx, span := observability.StartTicketSpan(ctx, ticket.ID)
	defer func() { observability.EndSpan(span, err) }()

	result.TicketID = ticket.ID
	d.metrics.TicketChecked()

	for attempt := 1; attempt <= casAttempts; attempt++ {
		transition := Classify(&ticket, d.clock.Now(), d.LeadsFor(ctx, &ticket, cache))
		if !transition.Changed {
			return result, nil
		}
		for i := range transition.Events {
			transition.Events[i].ID = uuid.NewString()
		}

		update := domain.SLAStateUpdate{State: transition.State, Events: transition.Events}
		ok, err := d.tickets.UpdateSLAState(ctx, ticket.ID, update, ticket.SLAVersion)
		if err != nil {
			return result, fmt.Errorf("update sla state for ticket %s: %w", ticket.ID, err)
		}
		if ok {
			result.Committed = true
			result.Events = transition.Events
			for _, event := range transition.Events {
				d.metrics.Transition(string(event.Dimension), string(event.Kind))
			}
			result.EmitFailures = d.emit(ctx, transition.Events)
			return result, nil
		}

		result.Conflicts++
		d.metrics.CASConflict()
		d.logger.Warn("sla state update conflicted, re-reading ticket",
			zap.String("ticket_id", ticket.ID),
			zap.Int64("expected_version", ticket.SLAVersion),
			zap.Int("attempt", attempt))
		if attempt == casAttempts {
			break
		}

		fresh, err := d.tickets.GetByID(ctx, ticket.ID)
		if err != nil {
			return result, fmt.Errorf("reload ticket %s: %w", ticket.ID, err)
		}
		ticket = *fresh
	}
	return result, ErrConflict
}

// emit hands committed events to the emitter on a context detached from scan
// cancellation, then marks the delivered ones in the outbox. Undelivered
// events stay pending for the next redelivery pass.
func (d *Detector) emit(ctx context.Context, events []domain.NotificationEvent) int {
	if len(events) == 0 || d.emitter == nil {
		return 0
	}
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.EmitTimeout)
	defer cancel()

	failures := 0
	delivered := make([]string, 0, len(events))
	for _, event := range events {
		if err := d.emitter.Emit(emitCtx, event); err != nil {
			failures++
			d.metrics.EmitFailure()
			d.logger.Error("failed to emit sla event",
				zap.String("event_id", event.ID),
				zap.String("ticket_id", event.TicketID),
				zap.String("dimension", string(event.Dimension)),
				zap.String("kind", string(event.Kind)),
				zap.Error(err))
			continue
		}
		delivered = append(delivered, event.ID)
	}
	if len(delivered) > 0 && d.outbox != nil {
		if err := d.outbox.MarkDispatched(emitCtx, delivered, d.clock.Now()); err != nil {
			d.logger.Warn("failed to mark sla events dispatched",
				zap.Strings("event_ids", delivered),
				zap.Error(err))
		}
	}
	return failures
}

// RedeliverPending re-emits committed events that were never marked as
// dispatched. It returns how many were delivered and how many failed.
func (d *Detector) RedeliverPending(ctx context.Context, limit int) (int, int, error) {
	if d.outbox == nil || d.emitter == nil {
		return 0, 0, nil
	}
	pending, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending sla events: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	failures := d.emit(ctx, pending)
	delivered := len(pending) - failures
	d.metrics.Redelivered(delivered)
	d.logger.Info("redelivered pending sla events",
		zap.Int("delivered", delivered),
		zap.Int("failed", failures))
	return delivered, failures, nil
}
