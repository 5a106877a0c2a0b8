package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans campaign events out to every API process over redis
// pub/sub. Delivery is at-most-once: a process that is not subscribed at
// publish time never sees the event.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := encodeEvent(event, time.Now)
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, stream, data).Result()
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, stream, err)
	}
	p.log.Debug("campaign event published",
		zap.String("type", event.Type),
		zap.String("campaign_id", event.CampaignID.String()),
		zap.Int64("receivers", receivers))
	return nil
}

var errUnscoped = errors.New("event has no tenant or campaign")

// encodeEvent stamps At when unset and refuses events the hub could not route.
func encodeEvent(event Event, now func() time.Time) ([]byte, error) {
	if event.TenantID == uuid.Nil || event.CampaignID == uuid.Nil {
		return nil, fmt.Errorf("encode %s: %w", event.Type, errUnscoped)
	}
	if event.At.IsZero() {
		event.At = now().UTC()
	}
	return json.Marshal(event)
}

func decodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, err
	}
	if event.TenantID == uuid.Nil || event.CampaignID == uuid.Nil {
		return Event{}, errUnscoped
	}
	return event, nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe blocks until redis confirms the subscription, then dispatches
// messages to handler on a background goroutine until ctx is done.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	ch := pubsub.Channel()
	s.log.Info("subscribed to event stream", zap.String("stream", stream))

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Warn("event stream closed", zap.String("stream", stream))
					return
				}
				s.dispatch(stream, msg.Payload, handler)
			}
		}
	}()

	return nil
}

// dispatch decodes one message and runs handler. A bad message or a panicking
// handler is logged and skipped; the subscription keeps running.
func (s *RedisSubscriber) dispatch(stream, payload string, handler func(Event)) {
	event, err := decodeEvent(payload)
	if err != nil {
		s.log.Error("dropping malformed event", zap.String("stream", stream), zap.Error(err))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked",
				zap.String("stream", stream),
				zap.String("type", event.Type),
				zap.Any("panic", r))
		}
	}()
	handler(event)
}
