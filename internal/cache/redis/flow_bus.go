package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/redis/go-redis/v9"
)

// publishTimeout bounds the background publish so a slow Redis cannot stall
// a flow between steps.
const publishTimeout = 2 * time.Second

// FlowBus fans flow state transitions out over Redis Pub/Sub so every server
// instance can stream them to its own WebSocket clients, regardless of which
// instance is executing the flow. It implements domain.FlowSink on the
// publish side.
type FlowBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewFlowBus creates a FlowBus backed by the given Client.
func NewFlowBus(c *Client, logger *slog.Logger) *FlowBus {
	return &FlowBus{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "flow_bus")),
	}
}

func flowChannel(wallet string) string {
	return "flow:" + wallet
}

// Publish broadcasts a flow state transition on the wallet's channel. It
// never blocks the caller beyond the publish timeout; delivery is best
// effort, the durable record lives in the event store.
func (fb *FlowBus) Publish(state domain.FlowState) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	payload, err := json.Marshal(state)
	if err != nil {
		fb.logger.Error("marshal flow state", slog.String("flow_id", state.FlowID), slog.Any("error", err))
		return
	}
	if err := fb.rdb.Publish(ctx, flowChannel(state.Wallet), payload).Err(); err != nil {
		fb.logger.Error("publish flow state",
			slog.String("flow_id", state.FlowID),
			slog.String("wallet", state.Wallet),
			slog.Any("error", err),
		)
	}
}

// Subscribe returns a channel of flow state transitions for one wallet. The
// subscription ends, and the returned channel closes, when the context is
// cancelled.
func (fb *FlowBus) Subscribe(ctx context.Context, wallet string) (<-chan domain.FlowState, error) {
	pubsub := fb.rdb.Subscribe(ctx, flowChannel(wallet))

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe flow %s: %w", wallet, err)
	}

	out := make(chan domain.FlowState, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var state domain.FlowState
				if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
					fb.logger.Warn("drop malformed flow payload", slog.Any("error", err))
					continue
				}
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.FlowSink = (*FlowBus)(nil)
