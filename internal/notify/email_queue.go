package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EmailJob is the payload consumed by the mailer from the Redis list.
type EmailJob struct {
	ID        string           `json:"id"`
	Template  string           `json:"template"`
	Priority  int              `json:"priority"`
	From      string           `json:"from"`
	TicketID  string           `json:"ticket_id"`
	EntityID  string           `json:"entity_id"`
	Dimension domain.Dimension `json:"dimension"`
	DueAt     time.Time        `json:"due_at"`
	QueuedAt  time.Time        `json:"queued_at"`
}

// EmailQueue accepts outbound email jobs.
type EmailQueue interface {
	Enqueue(ctx context.Context, job EmailJob) error
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisEmailQueue appends jobs to a Redis list.
type RedisEmailQueue struct {
	client listPusher
	key    string
}

// NewRedisEmailQueue builds a queue writing to key.
func NewRedisEmailQueue(client listPusher, key string) *RedisEmailQueue {
	return &RedisEmailQueue{client: client, key: key}
}

func (q *RedisEmailQueue) Enqueue(ctx context.Context, job EmailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode email job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("push email job to %s: %w", q.key, err)
	}
	return nil
}

// TemplateFor returns the mail template and queue priority for an SLA event kind.
func TemplateFor(kind domain.EventKind) (string, int, bool) {
	switch kind {
	case domain.EventKindWarning:
		return "sla-warning", 8, true
	case domain.EventKindBreach:
		return "sla-breach", 9, true
	case domain.EventKindEscalate:
		return "sla-escalation", 9, true
	default:
		return "", 0, false
	}
}
