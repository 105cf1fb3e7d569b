package sla

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/sla-engine/internal/calendar"
	"github.com/spec-kit/sla-engine/internal/domain"
)

type memTickets struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	outbox  *memOutbox

	// beforeUpdate runs inside UpdateSLAState before the version check.
	beforeUpdate func(t *domain.Ticket)
	// listGate blocks ListOpenWithPendingSLA until closed.
	listGate    chan struct{}
	listEntered chan struct{}
	updates     int
}

func newMemTickets(outbox *memOutbox, tickets ...domain.Ticket) *memTickets {
	s := &memTickets{tickets: make(map[string]*domain.Ticket), outbox: outbox}
	for i := range tickets {
		t := tickets[i]
		s.tickets[t.ID] = &t
	}
	return s
}

func (s *memTickets) get(id string) domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tickets[id]
}

func (s *memTickets) mutate(id string, fn func(t *domain.Ticket)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.tickets[id])
}

func (s *memTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memTickets) ListOpenWithPendingSLA(ctx context.Context) ([]domain.Ticket, error) {
	if s.listEntered != nil {
		s.listEntered <- struct{}{}
	}
	if s.listGate != nil {
		select {
		case <-s.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.HasPendingSLA() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memTickets) ListOpenByEntity(_ context.Context, entityID string) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.EntityID == entityID && !t.IsFrozen() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memTickets) UpdateSLAState(_ context.Context, id string, update domain.SLAStateUpdate, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.beforeUpdate != nil {
		s.beforeUpdate(t)
	}
	if t.SLAVersion != expectedVersion || t.IsFrozen() {
		return false, nil
	}
	t.ApplySLAState(update.State)
	t.SLAVersion++
	s.updates++
	if s.outbox != nil {
		s.outbox.add(update.Events)
	}
	return true, nil
}

func (s *memTickets) StampDueDates(_ context.Context, id string, due domain.DueDates, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.SLAVersion != expectedVersion {
		return false, nil
	}
	t.ApplyDueDates(due)
	t.SLAVersion++
	return true, nil
}

func (s *memTickets) ComplianceCounts(_ context.Context, entityID string, from, to time.Time) (domain.ComplianceCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts domain.ComplianceCounts
	for _, t := range s.tickets {
		if t.EntityID != entityID || t.SLARuleID == nil || t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		counts.Total++
		if !t.SLAResponseBreached && t.FirstResponseAt != nil {
			counts.ResponseCompliant++
		}
		if !t.SLAResolutionBreached && t.ResolvedAt != nil {
			counts.ResolutionCompliant++
		}
	}
	return counts, nil
}

type outboxRow struct {
	event      domain.NotificationEvent
	dispatched bool
}

type memOutbox struct {
	mu   sync.Mutex
	rows []*outboxRow
}

func (o *memOutbox) add(events []domain.NotificationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range events {
		o.rows = append(o.rows, &outboxRow{event: e})
	}
}

func (o *memOutbox) ListPending(_ context.Context, limit int) ([]domain.NotificationEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.NotificationEvent
	for _, r := range o.rows {
		if !r.dispatched && len(out) < limit {
			out = append(out, r.event)
		}
	}
	return out, nil
}

func (o *memOutbox) MarkDispatched(_ context.Context, ids []string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, id := range ids {
		for _, r := range o.rows {
			if r.event.ID == id {
				r.dispatched = true
			}
		}
	}
	return nil
}

func (o *memOutbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, r := range o.rows {
		if !r.dispatched {
			n++
		}
	}
	return n
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
	fail   int
}

func (e *recordingEmitter) Emit(_ context.Context, event domain.NotificationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail > 0 {
		e.fail--
		return errors.New("dispatcher unavailable")
	}
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) count(dim domain.Dimension, kind domain.EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.Dimension == dim && ev.Kind == kind {
			n++
		}
	}
	return n
}

type memRules struct {
	rules []domain.SLARule
}

func (r *memRules) ListApplicable(_ context.Context, entityID string) ([]domain.SLARule, error) {
	var out []domain.SLARule
	for _, rule := range r.rules {
		if rule.IsActive && (rule.EntityID == nil || *rule.EntityID == entityID) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memRules) GetByID(_ context.Context, id string) (*domain.SLARule, error) {
	for _, rule := range r.rules {
		if rule.ID == id {
			cp := rule
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type staticCalendars struct {
	cal   *calendar.Calendar
	err   error
	calls int
}

func (s *staticCalendars) ForEntity(context.Context, string) (*calendar.Calendar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cal, nil
}

type memMetrics struct {
	mu      sync.Mutex
	metrics map[string]*domain.ResponseMetric
}

func newMemMetrics() *memMetrics {
	return &memMetrics{metrics: make(map[string]*domain.ResponseMetric)}
}

func (m *memMetrics) Create(_ context.Context, metric *domain.ResponseMetric) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metric.TicketID + ":" + string(metric.MetricType)
	if _, ok := m.metrics[key]; ok {
		return false, nil
	}
	cp := *metric
	m.metrics[key] = &cp
	return true, nil
}

func (m *memMetrics) GetByTicket(_ context.Context, ticketID string, metricType domain.MetricType) (*domain.ResponseMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, ok := m.metrics[ticketID+":"+string(metricType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *metric
	return &cp, nil
}

func ptr[T any](v T) *T {
	return &v
}

func hours(n int) *time.Duration {
	d := time.Duration(n) * time.Hour
	return &d
}
