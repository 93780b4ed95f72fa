package config

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/webitel/jetstream-explorer/infra/transport/ws"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/handler/api"
	"github.com/webitel/jetstream-explorer/internal/service"
)

func (c *Config) Connection() consumer.ConnectionConfig {
	return consumer.ConnectionConfig{
		Instance:    c.Instance,
		Scheme:      c.Scheme,
		Collections: slices.Clone(c.Collections),
		DIDs:        slices.Clone(c.DIDs),
		Cursor:      c.Cursor,
		Compress:    c.Compress,
	}
}

func (c *Config) ConsumerOptions() []consumer.Option {
	return []consumer.Option{
		consumer.WithReconnect(consumer.ReconnectPolicy{
			InitialDelay: c.Reconnect.InitialDelay,
			MaxDelay:     c.Reconnect.MaxDelay,
			Multiplier:   c.Reconnect.Multiplier,
			Jitter:       c.Reconnect.Jitter,
			MaxAttempts:  c.Reconnect.MaxAttempts,
		}),
		consumer.WithBreaker(consumer.BreakerPolicy{
			MaxFailures: c.Breaker.MaxFailures,
			Cooldown:    c.Breaker.Cooldown,
		}),
		consumer.WithDedupe(c.DedupeSize),
		consumer.WithTick(c.Metrics.Tick),
	}
}

func (c *Config) Engine() metrics.Config {
	return metrics.Config{Window: c.Metrics.Window, DecayFactor: c.Metrics.Decay}
}

func (c *Config) WS() ws.Config {
	return ws.Config{
		HandshakeTimeout: c.Transport.HandshakeTimeout,
		WriteTimeout:     c.Transport.WriteTimeout,
		ReadLimit:        c.Transport.ReadLimit,
	}
}

func (c *Config) Service() service.Config {
	return service.Config{
		BufferSize:      c.BufferSize,
		HandleCacheSize: c.HandleCacheSize,
		ActivitySize:    c.Activity.Size,
	}
}

func (c *Config) API(version string) api.Config {
	return api.Config{Addr: c.HTTP.Addr, Version: version}
}

func (c *Config) Exchange() pubsub.ExchangeConfig {
	return pubsub.ExchangeConfig{URL: c.Sink.AMQPURL, Name: c.Sink.Exchange, Durable: c.Sink.Durable}
}

// SlogLevel maps log.level, falling back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
