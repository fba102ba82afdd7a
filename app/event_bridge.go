package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"dealforge/cache"
	"dealforge/engine"
	"dealforge/realtime"
	"dealforge/wsfeed"
)

// negotiationChannel is the Redis pub/sub channel other marketplace services
// subscribe to.
const negotiationChannel = "negotiations:events"

// eventBridge fans engine events out to every realtime surface: SSE clients,
// WebSocket clients and Redis subscribers. Publish never blocks the engine.
type eventBridge struct {
	broker *realtime.Broker
	hub    *wsfeed.Hub
	redis  *cache.RedisClient
}

func newEventBridge(broker *realtime.Broker, hub *wsfeed.Hub, redis *cache.RedisClient) *eventBridge {
	return &eventBridge{broker: broker, hub: hub, redis: redis}
}

// Publish implements engine.EventSink.
func (b *eventBridge) Publish(ev engine.Event) {
	if b.broker != nil {
		b.broker.Broadcast(ev.Type, ev)
	}

	if b.hub != nil {
		if payload, err := json.Marshal(ev); err == nil {
			b.hub.Broadcast(payload)
		}
	}

	if b.redis != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := b.redis.Publish(ctx, negotiationChannel, ev); err != nil {
				log.Printf("⚠️  Failed to publish %s to Redis: %v", ev.Type, err)
			}
		}()
	}
}
