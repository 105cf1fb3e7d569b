package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/clock"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
)

type fakeRedis struct {
	mu      sync.Mutex
	keys    map[string]time.Duration
	values  map[string]interface{}
	lists   map[string][][]byte
	pushErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: map[string]time.Duration{}, values: map[string]interface{}{}, lists: map[string][][]byte{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = ttl
	f.values[key] = value
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func TestRedisDeduperClaimsOnce(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	d := NewRedisDeduper(rdb, "sla:notified", time.Hour, nil)

	ok, err := d.Acquire(ctx, "t1:response:breach")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Acquire(ctx, "t1:response:breach")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Hour, rdb.keys["sla:notified:t1:response:breach"])

	require.NoError(t, d.Release(ctx, "t1:response:breach"))
	ok, err = d.Acquire(ctx, "t1:response:breach")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisDeduperStampsClaimWithClock(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	clk := clock.NewManual(time.Date(2024, 3, 4, 9, 30, 0, 0, time.FixedZone("CET", 3600)))
	d := NewRedisDeduper(rdb, "sla:notified", time.Hour, clk)

	ok, err := d.Acquire(ctx, "t1:resolution:warning")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-04T08:30:00Z", rdb.values["sla:notified:t1:resolution:warning"])

	require.NoError(t, d.Release(ctx, "t1:resolution:warning"))
	clk.Advance(90 * time.Minute)
	ok, err = d.Acquire(ctx, "t1:resolution:warning")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-04T10:00:00Z", rdb.values["sla:notified:t1:resolution:warning"])
}

func TestRedisEmailQueueEncodesJob(t *testing.T) {
	rdb := newFakeRedis()
	q := NewRedisEmailQueue(rdb, "email:queue")

	due := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(context.Background(), EmailJob{
		ID:        "e1",
		Template:  "sla-breach",
		Priority:  9,
		TicketID:  "t1",
		Dimension: domain.DimensionResponse,
		DueAt:     due,
	}))

	require.Len(t, rdb.lists["email:queue"], 1)
	var job EmailJob
	require.NoError(t, json.Unmarshal(rdb.lists["email:queue"][0], &job))
	assert.Equal(t, "sla-breach", job.Template)
	assert.Equal(t, 9, job.Priority)
	assert.True(t, job.DueAt.Equal(due))

	rdb.pushErr = errors.New("redis down")
	assert.Error(t, q.Enqueue(context.Background(), EmailJob{ID: "e2"}))
}

func TestTemplateFor(t *testing.T) {
	cases := []struct {
		kind     domain.EventKind
		template string
		priority int
	}{
		{domain.EventKindWarning, "sla-warning", 8},
		{domain.EventKindBreach, "sla-breach", 9},
		{domain.EventKindEscalate, "sla-escalation", 9},
	}
	for _, tc := range cases {
		template, priority, ok := TemplateFor(tc.kind)
		assert.True(t, ok)
		assert.Equal(t, tc.template, template)
		assert.Equal(t, tc.priority, priority)
	}
	_, _, ok := TemplateFor("unknown")
	assert.False(t, ok)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByTicket(t *testing.T) {
	writer := &fakeWriter{}
	p := &KafkaPublisher{writer: writer, logger: zap.NewNop()}
	dispatcher := events.NewInMemoryDispatcher()
	p.Register(dispatcher)

	event, ok := events.FromNotification(domain.NotificationEvent{
		ID:        "ev-1",
		TicketID:  "t-9",
		EntityID:  "ent",
		Dimension: domain.DimensionResolution,
		Kind:      domain.EventKindWarning,
	})
	require.True(t, ok)
	require.NoError(t, dispatcher.Publish(context.Background(), event))

	require.Len(t, writer.msgs, 1)
	assert.Equal(t, "t-9", string(writer.msgs[0].Key))
	assert.Contains(t, string(writer.msgs[0].Value), `"type":"sla_warning"`)

	writer.err = errors.New("broker unavailable")
	assert.Error(t, dispatcher.Publish(context.Background(), event))
}
