package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans events out across server instances. Emit publishes to a
// Redis channel; Start subscribes to that channel and relays every event into
// the local hub, so each instance reaches the sockets it holds.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   *Hub
	log     *slog.Logger
}

type envelope struct {
	Room string          `json:"room"`
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func NewRedisBroker(client *redis.Client, channel string, local *Hub, log *slog.Logger) *RedisBroker {
	return &RedisBroker{client: client, channel: channel, local: local, log: log}
}

// Emit publishes ev for room. When Redis is unreachable the event is still
// delivered to this instance's subscribers.
func (b *RedisBroker) Emit(ctx context.Context, room string, ev Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		b.log.Error("failed to encode realtime event", "event", ev.Type, "error", err)
		return
	}
	payload, err := json.Marshal(envelope{Room: room, Type: ev.Type, Data: data})
	if err != nil {
		b.log.Error("failed to encode realtime envelope", "event", ev.Type, "error", err)
		return
	}
	// publishing must not be cut short by the request finishing
	if err := b.client.Publish(context.WithoutCancel(ctx), b.channel, payload).Err(); err != nil {
		b.log.Warn("redis publish failed, delivering locally", "event", ev.Type, "room", room, "error", err)
		b.local.Emit(ctx, room, Event{Type: ev.Type, Data: json.RawMessage(data)})
	}
}

// Start subscribes to the broker channel and relays messages until ctx is
// done. It returns once the subscription is confirmed.
func (b *RedisBroker) Start(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.relay(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (b *RedisBroker) relay(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn("dropping malformed realtime envelope", "error", err)
		return
	}
	b.local.Emit(ctx, env.Room, Event{Type: env.Type, Data: env.Data})
}
