// Package msgbroker carries store change notifications between server
// instances so every instance can refresh the subscriptions it owns.
package msgbroker

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

type MessageHandler func(msg *Message)

type Message struct {
	Channel string
	Data    []byte
}

type MessageBroker interface {
	Publish(ctx context.Context, channel string, msg []byte) error
	Subscribe(ctx context.Context, channel string, cb MessageHandler) error
	Close() error
}

type redisBroker struct {
	client *redis.Client
	pubSub *redis.PubSub

	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

func NewRedisBroker(rc *redis.Client) MessageBroker {
	rb := &redisBroker{
		client:   rc,
		pubSub:   rc.Subscribe(context.Background()),
		handlers: make(map[string]MessageHandler),
	}
	go rb.serveMessages()

	return rb
}

func (rb *redisBroker) serveMessages() {
	for msg := range rb.pubSub.Channel() {
		rb.mu.RLock()
		handler, exists := rb.handlers[msg.Channel]
		rb.mu.RUnlock()

		if exists {
			handler(&Message{
				Channel: msg.Channel,
				Data:    []byte(msg.Payload),
			})
		}
	}
}

func (rb *redisBroker) Publish(ctx context.Context, channel string, msg []byte) error {
	return rb.client.Publish(ctx, channel, msg).Err()
}

func (rb *redisBroker) Subscribe(ctx context.Context, channel string, cb MessageHandler) error {
	if err := rb.pubSub.Subscribe(ctx, channel); err != nil {
		return err
	}

	rb.mu.Lock()
	rb.handlers[channel] = cb
	rb.mu.Unlock()

	return nil
}

func (rb *redisBroker) Close() error {
	return rb.pubSub.Close()
}
