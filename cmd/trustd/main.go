package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/api"
	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/tracing"
)

func main() {
	app := &cli.App{
		Name:  "trustd",
		Usage: "community trust & safety service",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "config-path", Usage: "directories searched for config.yaml", EnvVars: []string{"TRUST_CONFIG_PATH"}},
		},
		Commands: []*cli.Command{
			serveCommand,
			recomputeCommand,
			escalationsCommand,
			tokenCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cctx *cli.Context) (*config.Config, error) {
	return config.Load(cctx.StringSlice("config-path")...)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the HTTP API",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "notify-workers", Value: 4},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cctx.Context)
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		defer sentry.Flush(2 * time.Second)

		shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		stopNotify := a.async.Start(cctx.Int("notify-workers"))

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      api.NewRouter(cfg, a.handler, a.users),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if err := stopNotify(shutdownCtx); err != nil {
			logger.Warn("notifier drain", zap.Error(err))
		}
		return shutdownTracing(shutdownCtx)
	},
}

var recomputeCommand = &cli.Command{
	Name:      "recompute",
	Usage:     "recompute reputation for one actor, or everyone with --all",
	ArgsUsage: "[actor-id]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all"},
		&cli.IntFlag{Name: "batch", Usage: "page size for --all (defaults to reputation.recompute_batch)"},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cctx.Context)
		defer cancel()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		// 退出前排空通知队列
		stopNotify := a.async.Start(1)
		defer func() { _ = stopNotify(context.Background()) }()

		if cctx.Bool("all") {
			batch := cctx.Int("batch")
			if batch <= 0 {
				batch = cfg.Reputation.RecomputeBatch
			}
			sum, err := a.reputation.RecomputeAll(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Printf("processed=%d changed=%d failed=%d\n", sum.Processed, sum.Changed, sum.Failed)
			return nil
		}
		actorID := cctx.Args().First()
		if actorID == "" {
			return cli.Exit("actor id or --all required", 2)
		}
		ch, err := a.reputation.Recompute(ctx, actorID)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d -> %d (tier %d -> %d)\n", ch.ActorID, ch.OldScore, ch.NewScore, ch.OldTier, ch.NewTier)
		return nil
	},
}

var escalationsCommand = &cli.Command{
	Name:  "escalations",
	Usage: "raise-hand escalation outbox",
	Subcommands: []*cli.Command{
		{
			Name:  "drain",
			Usage: "fan out pending escalations; --watch keeps polling",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "watch"},
				&cli.IntFlag{Name: "workers", Value: 2},
			},
			Action: func(cctx *cli.Context) error {
				cfg, err := loadConfig(cctx)
				if err != nil {
					return err
				}
				ctx, cancel := signalContext(cctx.Context)
				defer cancel()
				a, err := newApp(ctx, cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				if !cctx.Bool("watch") {
					n, err := a.dispatcher.DrainPending(ctx)
					fmt.Printf("dispatched=%d\n", n)
					return err
				}
				stop := a.dispatcher.Start(cctx.Int("workers"))
				<-ctx.Done()
				stopCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
				defer done()
				return stop(stopCtx)
			},
		},
	},
}

var tokenCommand = &cli.Command{
	Name:      "token",
	Usage:     "issue a bearer token for an actor (operations and local testing)",
	ArgsUsage: "<actor-id>",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		actorID := cctx.Args().First()
		if actorID == "" {
			return cli.Exit("actor id required", 2)
		}
		tok, err := middleware.GenerateToken(cfg.JWT, actorID, cctx.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}
