package cmd

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/jetstream-explorer/config"
	"github.com/webitel/jetstream-explorer/infra/telemetry"
	"github.com/webitel/jetstream-explorer/infra/transport/ws"
	"github.com/webitel/jetstream-explorer/internal/adapter/pubsub"
	"github.com/webitel/jetstream-explorer/internal/consumer"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/registry"
	"github.com/webitel/jetstream-explorer/internal/handler/api"
	"github.com/webitel/jetstream-explorer/internal/handler/bus"
	"github.com/webitel/jetstream-explorer/internal/service"
	"github.com/webitel/jetstream-explorer/internal/service/dto"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config, loader *config.Loader, extra ...fx.Option) *fx.App {
	opts := []fx.Option{
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Supply(cfg, loader),
		fx.Provide(
			ProvideLogger,
			ProvideWatermillLogger,
			ProvidePubSub,
			ProvideDispatcher,
			pubsub.NewPublisherProvider,
			func() *telemetry.Metrics { return telemetry.New(version) },
			func(logger *slog.Logger, cfg *config.Config) *ws.Transport {
				return ws.New(logger.With("component", "transport"), cfg.WS())
			},
			func(cfg *config.Config) *metrics.Engine {
				return metrics.NewEngine(metrics.RealClock{}, cfg.Engine())
			},
			func(cfg *config.Config) consumer.ConnectionConfig { return cfg.Connection() },
			func(cfg *config.Config) []consumer.Option { return cfg.ConsumerOptions() },
			func(cfg *config.Config) service.Config { return cfg.Service() },
			func(cfg *config.Config) api.Config { return cfg.API(version) },
		),
		registry.Module,
		consumer.Module,
		service.Module,
		bus.Module,
		api.Module,
		fx.Invoke(Autostart, WatchConfig),
	}

	if cfg.Sink.AMQPURL != "" {
		opts = append(opts, fx.Provide(
			fx.Annotate(ProvideForwardPublisher, fx.ResultTags(`name:"forward"`)),
		))
	}

	return fx.New(append(opts, extra...)...)
}

// ProvidePubSub exposes the in-process bus under both watermill roles.
func ProvidePubSub(lc fx.Lifecycle, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	bus := pubsub.NewLocalPubSub(logger)
	lc.Append(fx.StopHook(bus.Close))
	return bus, bus
}

// ProvideDispatcher starts the ordered drain onto the local bus.
func ProvideDispatcher(lc fx.Lifecycle, pub message.Publisher, logger watermill.LoggerAdapter, cfg *config.Config) pubsub.EventDispatcher {
	d := pubsub.NewEventDispatcher(pub, logger, pubsub.WithQueueSize(cfg.Bus.QueueSize))
	lc.Append(fx.StopHook(d.Close))
	return d
}

func ProvideForwardPublisher(lc fx.Lifecycle, pp *pubsub.PublisherProvider, cfg *config.Config) (message.Publisher, error) {
	pub, err := pp.Build(cfg.Exchange())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pub.Close))
	return pub, nil
}

// Autostart opens the stream once the graph is running.
func Autostart(lc fx.Lifecycle, cfg *config.Config, explorer service.Explorer) {
	if !cfg.Autostart {
		return
	}
	lc.Append(fx.StartHook(explorer.Start))
}

// WatchConfig applies connection changes from an edited config file.
func WatchConfig(lc fx.Lifecycle, loader *config.Loader, explorer service.Explorer, logger *slog.Logger) {
	lc.Append(fx.StartHook(func(context.Context) {
		loader.Watch(func(cfg *config.Config, err error) {
			if err != nil {
				logger.Warn("CONFIG_RELOAD_REJECTED", "err", err)
				return
			}
			conn := cfg.Connection()
			if _, err := explorer.UpdateOptions(dto.OptionsRequest{
				Instance:    &conn.Instance,
				Collections: &conn.Collections,
				DIDs:        &conn.DIDs,
				Cursor:      &conn.Cursor,
				Compress:    &conn.Compress,
			}); err != nil {
				logger.Warn("CONFIG_RELOAD_FAILED", "err", err)
				return
			}
			logger.Info("CONFIG_RELOADED", "instance", conn.Instance)
		})
	}))
}
