package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/webitel/jetstream-explorer/config"
	"github.com/webitel/jetstream-explorer/internal/handler/tui"
	"github.com/webitel/jetstream-explorer/internal/service"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
)

const (
	ServiceName      = "jetstream-explorer"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Consume and inspect a Jetstream firehose",
		Version: fmt.Sprintf("%s (%s, %s, %s)", version, commit, branch, commitDate),
		Commands: []*cli.Command{
			streamCmd(),
		},
	}

	return app.Run(os.Args)
}

func streamCmd() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Aliases:   []string{"s"},
		Usage:     "Connect to a Jetstream instance and serve the inspector",
		ArgsUsage: "[-- --instance=host --collections=a,b --cursor=us ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			flags := config.Flags()
			if err := flags.Parse(c.Args().Slice()); err != nil {
				return err
			}

			loader, err := config.NewLoader(c.String("config_file"), flags)
			if err != nil {
				return err
			}
			cfg, err := loader.Load()
			if err != nil {
				return err
			}

			var explorer service.Explorer
			app := NewApp(cfg, loader, fx.Populate(&explorer))

			if err := app.Start(c.Context); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			if cfg.TUI {
				g.Go(func() error {
					defer stop()
					return tui.NewDashboard(explorer, cfg.Metrics.Tick).Run(gctx)
				})
			}
			runErr := g.Wait()

			slog.Info("SHUTTING_DOWN")
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return errors.Join(runErr, app.Stop(stopCtx))
		},
	}
}
