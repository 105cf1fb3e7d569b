package sla

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/observability"
)

// ErrScanInProgress is returned when a scan is requested while one is running.
var ErrScanInProgress = errors.New("sla: scan already in progress")

const (
	DefaultScanInterval  = 5 * time.Minute
	DefaultScanWorkers   = 4
	DefaultTicketTimeout = 10 * time.Second
	DefaultOutboxBatch   = 100
)

// SchedulerConfig tunes the periodic scan.
type SchedulerConfig struct {
	Interval      time.Duration
	Workers       int
	TicketTimeout time.Duration
	OutboxBatch   int
}

// ScanReport summarizes one detector pass.
type ScanReport struct {
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Processed    int           `json:"processed"`
	Warnings     int           `json:"warnings"`
	Breaches     int           `json:"breaches"`
	Escalations  int           `json:"escalations"`
	Conflicts    int           `json:"conflicts"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	EmitFailures int           `json:"emit_failures"`
	Redelivered  int           `json:"redelivered"`
}

func (r *ScanReport) add(res CheckResult) {
	r.Processed++
	r.Conflicts += res.Conflicts
	r.EmitFailures += res.EmitFailures
	for _, event := range res.Events {
		switch event.Kind {
		case domain.EventKindWarning:
			r.Warnings++
		case domain.EventKindBreach:
			r.Breaches++
		case domain.EventKindEscalate:
			r.Escalations++
		}
	}
}

// Scheduler runs the detector over every open ticket with pending deadlines.
// Scans never overlap; tickets within a scan are checked by a bounded pool.
type Scheduler struct {
	detector *Detector
	tickets  TicketStore
	monitor  *Monitor
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *observability.Metrics
	cfg      SchedulerConfig

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a scheduler around a detector.
func NewScheduler(detector *Detector, tickets TicketStore, monitor *Monitor, clk clock.Clock, logger *zap.Logger, metrics *observability.Metrics, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultScanInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultScanWorkers
	}
	if cfg.TicketTimeout <= 0 {
		cfg.TicketTimeout = DefaultTicketTimeout
	}
	if cfg.OutboxBatch <= 0 {
		cfg.OutboxBatch = DefaultOutboxBatch
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if monitor == nil {
		monitor = NewMonitor()
	}
	return &Scheduler{
		detector: detector,
		tickets:  tickets,
		monitor:  monitor,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Monitor returns the cumulative scan monitor.
func (s *Scheduler) Monitor() *Monitor {
	return s.monitor
}

// RunOnce performs a single scan. It returns ErrScanInProgress when another
// scan holds the single-flight guard. Cancelling ctx stops new tickets from
// being picked up; tickets already being checked run to completion.
func (s *Scheduler) RunOnce(ctx context.Context) (report ScanReport, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.monitor.recordSkippedTick()
		s.metrics.ObserveScan("skipped", 0)
		return ScanReport{}, ErrScanInProgress
	}
	defer s.running.Store(false)

	ctx, span := observability.StartScanSpan(ctx)
	defer func() { observability.EndSpan(span, err) }()

	report.StartedAt = s.clock.Now()
	started := time.Now()
	defer func() {
		report.Duration = time.Since(started)
		if err != nil {
			s.metrics.ObserveScan("failed", report.Duration)
			return
		}
		s.metrics.ObserveScan("completed", report.Duration)
		s.monitor.record(report)
	}()

	redelivered, _, err := s.detector.RedeliverPending(ctx, s.cfg.OutboxBatch)
	if err != nil {
		s.logger.Warn("outbox redelivery failed", zap.Error(err))
	}
	report.Redelivered = redelivered

	tickets, err := s.tickets.ListOpenWithPendingSLA(ctx)
	if err != nil {
		return report, fmt.Errorf("list open tickets with pending sla: %w", err)
	}

	cache := NewRuleCache()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Workers)
	for i := range tickets {
		if ctx.Err() != nil {
			mu.Lock()
			report.Skipped += len(tickets) - i
			mu.Unlock()
			break
		}
		ticket := tickets[i]
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TicketTimeout)
			defer cancel()

			res, err := s.detector.CheckTicket(tctx, ticket, cache)
			mu.Lock()
			defer mu.Unlock()
			report.add(res)
			switch {
			case errors.Is(err, ErrConflict):
				report.Skipped++
			case err != nil:
				report.Failed++
				s.logger.Error("sla check failed",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("sla scan finished",
		zap.Int("tickets", len(tickets)),
		zap.Int("processed", report.Processed),
		zap.Int("warnings", report.Warnings),
		zap.Int("breaches", report.Breaches),
		zap.Int("escalations", report.Escalations),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("redelivered", report.Redelivered))
	return report, nil
}

// Run scans once per tick until ctx is cancelled or ticks is closed.
func (s *Scheduler) Run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
				s.logger.Error("sla scan failed", zap.Error(err))
			}
		}
	}
}

// Start launches the periodic loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	ticker := time.NewTicker(s.cfg.Interval)
	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		s.logger.Info("sla scheduler started", zap.Duration("interval", s.cfg.Interval))
		s.Run(ctx, ticker.C)
		s.logger.Info("sla scheduler stopped")
	}(s.done)
}

// Stop cancels the loop and waits for an in-flight scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
