package distributed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl-arena/ladder-backend/internal/models"
)

const eventChannel = "matchmaking:events"

// EventBus fans committed engine events out to every instance over redis pub/sub. Each instance
// (the publisher included) receives the event from its own subscription and hands it to the local hub.
type EventBus struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	channel string
	ready   chan struct{}
}

func NewEventBus(client redis.UniversalClient, logger *zap.Logger) *EventBus {
	return &EventBus{
		client:  client,
		logger:  logger,
		channel: eventChannel,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Start holds a confirmed subscription.
func (b *EventBus) Ready() <-chan struct{} {
	return b.ready
}

func (b *EventBus) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Published event",
		zap.String("type", string(event.Type)),
		zap.String("guildId", event.GuildID))
	return nil
}

// Start delivers events to handler until ctx is cancelled.
func (b *EventBus) Start(ctx context.Context, handler func(models.Event)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	close(b.ready)

	b.logger.Info("Event bus started", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event models.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}
			handler(event)

		case <-ctx.Done():
			b.logger.Info("Event bus stopped")
			return nil
		}
	}
}
