package sla

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
)

// Dependencies wires the engine to its collaborators.
type Dependencies struct {
	Tickets   TicketStore
	Rules     RuleSource
	Calendars CalendarProvider
	Outbox    Outbox
	Emitter   Emitter
	Metrics   MetricStore
	Clock     clock.Clock
	Logger    *zap.Logger
	Telemetry *observability.Metrics
}

// Config groups detector and scheduler tuning. MaxHorizon caps wall-clock
// due dates; business-hours due dates use the calendar's own horizon.
type Config struct {
	Detector   DetectorConfig
	Scheduler  SchedulerConfig
	MaxHorizon time.Duration
}

// Engine is the entry point used by the host: it stamps due dates, runs the
// detector and answers reporting queries.
type Engine struct {
	tickets    TicketStore
	rules      RuleSource
	calendars  CalendarProvider
	metrics    MetricStore
	matcher    *Matcher
	calculator *DueDateCalculator
	detector   *Detector
	scheduler  *Scheduler
	clock      clock.Clock
	logger     *zap.Logger
}

// NewEngine constructs an engine and its scheduler.
func NewEngine(deps Dependencies, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	detector := NewDetector(DetectorDependencies{
		Tickets: deps.Tickets,
		Rules:   deps.Rules,
		Outbox:  deps.Outbox,
		Emitter: deps.Emitter,
		Clock:   deps.Clock,
		Logger:  deps.Logger.Named("detector"),
		Metrics: deps.Telemetry,
	}, cfg.Detector)
	scheduler := NewScheduler(detector, deps.Tickets, NewMonitor(), deps.Clock,
		deps.Logger.Named("scheduler"), deps.Telemetry, cfg.Scheduler)

	return &Engine{
		tickets:    deps.Tickets,
		rules:      deps.Rules,
		calendars:  deps.Calendars,
		metrics:    deps.Metrics,
		matcher:    NewMatcher(),
		calculator: NewDueDateCalculator(deps.Calendars, cfg.MaxHorizon),
		detector:   detector,
		scheduler:  scheduler,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Scheduler exposes the periodic detector loop.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// Scan runs one detector pass immediately.
func (e *Engine) Scan(ctx context.Context) (ScanReport, error) {
	return e.scheduler.RunOnce(ctx)
}

// Monitoring returns cumulative detector totals.
func (e *Engine) Monitoring() MonitoringSnapshot {
	return e.scheduler.Monitor().Snapshot()
}

// ApplySLA matches a rule for the ticket and stamps its due dates. It is
// called once at ticket creation; a ticket without a matching rule is stamped
// with empty due dates.
func (e *Engine) ApplySLA(ctx context.Context, ticketID string) (domain.DueDates, error) {
	return e.stamp(ctx, ticketID, "apply")
}

// OnPriorityChanged recomputes due dates after a priority edit. Once the
// first response exists the due dates are frozen and ErrDueDatesFrozen is returned.
func (e *Engine) OnPriorityChanged(ctx context.Context, ticketID string) (domain.DueDates, error) {
	return e.stamp(ctx, ticketID, "priority_changed")
}

func (e *Engine) stamp(ctx context.Context, ticketID, reason string) (domain.DueDates, error) {
	for attempt := 1; attempt <= casAttempts; attempt++ {
		ticket, err := e.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return domain.DueDates{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
		}
		if ticket.FirstResponseAt != nil || ticket.IsFrozen() {
			return domain.DueDates{}, ErrDueDatesFrozen
		}

		rules, err := e.rules.ListApplicable(ctx, ticket.EntityID)
		if err != nil {
			return domain.DueDates{}, fmt.Errorf("list sla rules for entity %s: %w", ticket.EntityID, err)
		}
		rule := e.matcher.Match(rules, ticket.EntityID, ticket.Priority, ticket.ConditionAttributes())
		due, err := e.calculator.Compute(ctx, ticket, rule)
		if err != nil {
			return domain.DueDates{}, err
		}

		ok, err := e.tickets.StampDueDates(ctx, ticketID, due, ticket.SLAVersion)
		if err != nil {
			return domain.DueDates{}, fmt.Errorf("stamp due dates for ticket %s: %w", ticketID, err)
		}
		if ok {
			fields := []zap.Field{
				zap.String("ticket_id", ticketID),
				zap.String("entity_id", ticket.EntityID),
				zap.String("reason", reason),
				zap.Bool("has_sla", due.RuleID != nil),
			}
			if due.RuleID != nil {
				fields = append(fields, zap.String("rule_id", *due.RuleID))
			}
			if due.NeedsReview {
				e.logger.Warn("sla due date capped at horizon, ticket flagged for review", fields...)
			} else {
				e.logger.Info("sla due dates stamped", fields...)
			}
			return due, nil
		}
		e.logger.Warn("due date stamp conflicted, retrying",
			zap.String("ticket_id", ticketID),
			zap.Int("attempt", attempt))
	}
	return domain.DueDates{}, ErrConflict
}

// ReloadCalendar drops any cached calendar for the entity so the next due
// date computation reads its current business hours. It reports false when
// the provider does not cache.
func (e *Engine) ReloadCalendar(entityID string) bool {
	invalidator, ok := e.calendars.(CalendarInvalidator)
	if !ok {
		return false
	}
	invalidator.Invalidate(entityID)
	e.logger.Info("sla calendar reloaded", zap.String("entity_id", entityID))
	return true
}

// CheckTicket runs the detector for a single ticket on demand.
func (e *Engine) CheckTicket(ctx context.Context, ticketID string) (CheckResult, error) {
	ticket, err := e.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	return e.detector.CheckTicket(ctx, *ticket, NewRuleCache())
}
