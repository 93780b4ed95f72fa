package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/webitel/jetstream-explorer/infra/transport/ws"
	"github.com/webitel/jetstream-explorer/internal/domain/activity"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"go.uber.org/fx"
)

type Params struct {
	fx.In

	Logger     *slog.Logger
	Transport  *ws.Transport
	Engine     *metrics.Engine
	Observer   Observer
	Activity   *activity.Log
	Connection ConnectionConfig
	Options    []Option `optional:"true"`
}

func Provide(p Params) *Consumer {
	opts := append([]Option{WithActivity(p.Activity)}, p.Options...)
	return New(p.Logger.With("component", "consumer"), p.Transport, p.Engine, p.Observer, p.Connection, opts...)
}

var Module = fx.Module("consumer",
	fx.Provide(Provide),
	fx.Invoke(func(lc fx.Lifecycle, c *Consumer, logger *slog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("CONSUMER_LOOP_FAILED", "err", err)
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)
