package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/app"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/handler"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/middleware"
	"github.com/iliyamo/table-reservation/internal/queue"
	"github.com/iliyamo/table-reservation/internal/recurring"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

func newServeCmd() *cobra.Command {
	var (
		migrate           bool
		recurringInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Env, cfg.LogLevel)
			eng := config.LoadEngineConfig()
			cacheCfg := config.LoadCacheConfig()
			rlCfg := config.LoadRateLimitConfig()
			qCfg := config.LoadQueueConfig()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if migrate && cfg.Store == config.StoreMySQL {
				if err := migrateUp(cfg, log); err != nil {
					return err
				}
			}
			store, db, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
			if rdb != nil {
				defer rdb.Close()
			}
			cache, locker := sharedBackends(rdb, eng, cacheCfg, log)

			if qCfg.Enabled && qCfg.ConsumerEnabled {
				go func() {
					_ = queue.StartNotificationConsumer(ctx, queue.ConsumerConfig{URL: qCfg.URL, Queue: qCfg.Queue, LogDir: qCfg.LogDir}, log)
				}()
			}

			a := app.New(app.Options{
				Store:     store,
				Engine:    eng,
				Cache:     cache,
				Locker:    locker,
				Publisher: publisher(qCfg, log),
				Limiter:   middleware.NewTokenBucket(rlCfg, rdb, log),
				JWTSecret: cfg.JWTSecret,
				Checks:    map[string]handler.Check{"database": pingDB(db), "redis": pingRedis(rdb)},
				Log:       log,
			})

			if recurringInterval > 0 {
				go runRecurring(ctx, a.Recurring, recurringInterval, log)
			}

			errc := make(chan error, 1)
			go func() {
				log.WithField("addr", ":"+cfg.Port).WithField("env", cfg.Env).Info("listening")
				errc <- a.Echo.Start(":" + cfg.Port)
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			return a.Echo.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations on startup (mysql store)")
	cmd.Flags().DurationVar(&recurringInterval, "recurring-interval", time.Hour, "how often to materialize recurring series (0 disables)")
	return cmd
}

// runRecurring materializes due series once at startup and then on every
// tick until ctx ends.
func runRecurring(ctx context.Context, svc *recurring.Service, every time.Duration, log logrus.FieldLogger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		today := timeutil.FormatDate(time.Now().UTC())
		if _, err := svc.ProcessScheduledOccurrences(ctx, today); err != nil {
			log.WithError(err).Warn("scheduled recurring run had failures")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
