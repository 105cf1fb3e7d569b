package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func TestPublishRunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	first := errors.New("first")
	second := errors.New("second")
	calls := 0
	d.Subscribe(EventSLABreach, func(context.Context, Event) error { calls++; return first })
	d.Subscribe(EventSLABreach, func(context.Context, Event) error { calls++; return nil })
	d.Subscribe(EventSLABreach, func(context.Context, Event) error { calls++; return second })
	d.Subscribe(EventSLAWarning, func(context.Context, Event) error { t.Fatal("wrong type"); return nil })

	err := d.Publish(context.Background(), Event{Type: EventSLABreach})
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventSLAEscalate}))
}

func TestSLAEmitterRoundTrip(t *testing.T) {
	d := NewInMemoryDispatcher()
	var got []Event
	d.Subscribe(EventSLAEscalate, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	due := time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	n := domain.NotificationEvent{
		ID: "ev-1", TicketID: "t1", EntityID: "E",
		Dimension: domain.DimensionEscalation, Kind: domain.EventKindEscalate,
		DueAt: due, OccurredAt: due.Add(time.Minute),
	}
	require.NoError(t, NewSLAEmitter(d).Emit(context.Background(), n))
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TicketID)

	back, ok := ToNotification(got[0])
	require.True(t, ok)
	assert.Equal(t, n, back)

	err := NewSLAEmitter(d).Emit(context.Background(), domain.NotificationEvent{Kind: "nudge"})
	assert.Error(t, err)
}
