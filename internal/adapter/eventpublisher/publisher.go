// Package eventpublisher broadcasts session lifecycle events over Redis
// pub/sub so downstream consumers (notification workers, activity feeds)
// can react without polling the keyspace.
package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/studysync/internal/domain"
)

const channel = "studysync:events"

type event struct {
	Type       string    `json:"type"`
	SessionID  uuid.UUID `json:"session_id"`
	CreatorID  string    `json:"creator_id"`
	Title      string    `json:"title"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RedisPublisher struct {
	rdb   *goredis.Client
	clock clockwork.Clock
}

func New(rdb *goredis.Client, clock clockwork.Clock) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, clock: clock}
}

func (p *RedisPublisher) PublishSessionCreated(ctx context.Context, session *domain.Session) error {
	return p.publish(ctx, "session_created", session)
}

func (p *RedisPublisher) PublishSessionExpired(ctx context.Context, session *domain.Session) error {
	return p.publish(ctx, "session_expired", session)
}

func (p *RedisPublisher) PublishSessionDeleted(ctx context.Context, session *domain.Session) error {
	return p.publish(ctx, "session_deleted", session)
}

func (p *RedisPublisher) publish(ctx context.Context, eventType string, session *domain.Session) error {
	payload, err := json.Marshal(event{
		Type:       eventType,
		SessionID:  session.ID,
		CreatorID:  session.CreatorID,
		Title:      session.Title,
		OccurredAt: p.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}
