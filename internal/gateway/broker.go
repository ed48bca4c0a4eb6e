package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"messenger/internal/config"
	"messenger/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Broker публикует payload в топик. Run обслуживает входящую
// доставку и блокируется до отмены ctx.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Run(ctx context.Context) error
}

// LocalBroker доставляет напрямую в Hub этого процесса
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.hub.Deliver(topic, payload)
	return nil
}

func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// RedisBroker - relay через Redis pub/sub для нескольких инстансов.
// Публикация идет в канал prefix+topic, подписка на prefix* кормит Hub.
type RedisBroker struct {
	pub    *redis.Client
	sub    *redis.Client
	prefix string
	hub    *Hub
	log    logger.Logger
	ready  chan struct{}
}

// NewRedisBroker открывает два подключения к relay: системное для
// публикации и клиентское для подписки.
func NewRedisBroker(cfg config.RelayConfig, hub *Hub, log logger.Logger) *RedisBroker {
	pub := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.SystemLogin,
		Password: cfg.SystemPasscode,
	})
	sub := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.ClientLogin,
		Password: cfg.ClientPasscode,
	})
	return newRedisBroker(pub, sub, cfg.ChannelPrefix, hub, log)
}

func newRedisBroker(pub, sub *redis.Client, prefix string, hub *Hub, log logger.Logger) *RedisBroker {
	return &RedisBroker{
		pub:    pub,
		sub:    sub,
		prefix: prefix,
		hub:    hub,
		log:    log,
		ready:  make(chan struct{}),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.pub.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("relay publish %s: %w", topic, err)
	}
	return nil
}

// Ready закрывается, когда подписка на relay подтверждена
func (b *RedisBroker) Ready() <-chan struct{} {
	return b.ready
}

func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.sub.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay subscribe: %w", err)
	}
	close(b.ready)
	b.log.Info("Relay subscription established", "pattern", b.prefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			topic := strings.TrimPrefix(msg.Channel, b.prefix)
			payload := []byte(msg.Payload)
			if !json.Valid(payload) {
				b.log.Warn("Dropping non-JSON relay payload", "topic", topic)
				continue
			}
			b.hub.Deliver(topic, payload)
		}
	}
}

func (b *RedisBroker) Close() error {
	return errors.Join(b.pub.Close(), b.sub.Close())
}
