// Gaia World Sync - Real-Time World State Synchronization Engine
// Copyright 2026 Aeonia AI
// SPDX-License-Identifier: Apache-2.0
// https://github.com/Aeonia-ai/gaia-sub003

package bus

import (
	"context"
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/Aeonia-ai/gaia-sub003/internal/logging"
)

// NATSConfig configures the NATS-backed bus.
type NATSConfig struct {
	// URL of the NATS server. Ignored when Embedded is true.
	URL string

	// Embedded starts an in-process NATS server and connects to it.
	Embedded bool

	// StoreDir is the JetStream storage directory for the embedded
	// server.
	StoreDir string

	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int

	// Breaker trips publishing after consecutive failures so a dead
	// broker degrades to resync-on-reconnect instead of blocking
	// commits.
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// DefaultNATSConfig returns production defaults.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:                url,
		MaxReconnects:      -1,
		ReconnectWait:      2 * time.Second,
		ReconnectBuffer:    8 * 1024 * 1024,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
}

// NATSBus is a Bus over NATS JetStream with reconnect handling and a
// circuit breaker around publishes.
type NATSBus struct {
	pub      message.Publisher
	sub      message.Subscriber
	breaker  *gobreaker.CircuitBreaker[interface{}]
	embedded *server.Server
}

// NewNATS builds the NATS bus, optionally bootstrapping an embedded
// server first.
func NewNATS(cfg NATSConfig) (*NATSBus, error) {
	b := &NATSBus{}

	url := cfg.URL
	if cfg.Embedded {
		ns, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		b.embedded = ns
		url = ns.ClientURL()
		logging.Info().Str("url", url).Msg("embedded NATS server started")
	}

	wmLogger := NewWatermillLogger()
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		b.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}
	b.pub = pub

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
		},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		b.shutdownEmbedded()
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}
	b.sub = sub

	b.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:    "nats-publish",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit breaker state change")
		},
	})

	return b, nil
}

// Publish implements message.Publisher. The message UUID doubles as the
// JetStream dedup ID, so broker-side redelivery of the same event is
// collapsed where possible; consumers still guard with version checks.
func (b *NATSBus) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.pub.Publish(topic, msgs...)
	})
	return err
}

// Subscribe implements message.Subscriber.
func (b *NATSBus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.sub.Subscribe(ctx, topic)
}

// Close shuts down publisher, subscriber, and the embedded server.
func (b *NATSBus) Close() error {
	var firstErr error
	if err := b.pub.Close(); err != nil {
		firstErr = err
	}
	if err := b.sub.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	b.shutdownEmbedded()
	return firstErr
}

func (b *NATSBus) shutdownEmbedded() {
	if b.embedded == nil {
		return
	}
	b.embedded.Shutdown()
	b.embedded.WaitForShutdown()
	b.embedded = nil
}

func startEmbeddedServer(cfg NATSConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "gaia-world-sync",
		Host:       "127.0.0.1",
		Port:       -1, // random free port
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
		MaxPayload: 8 * 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}
	return ns, nil
}

// Healthy reports whether the publish breaker is closed.
func (b *NATSBus) Healthy() bool {
	return b.breaker.State() == gobreaker.StateClosed
}
