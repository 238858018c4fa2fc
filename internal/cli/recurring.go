package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/table-reservation/internal/app"
	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/timeutil"
)

func newRecurringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Recurring booking maintenance",
	}

	var date string
	run := &cobra.Command{
		Use:   "run",
		Short: "Book every recurring occurrence due within the horizon",
		Long: "Materializes each ACTIVE series whose next occurrence falls on or before " +
			"--date plus RECURRING_HORIZON_DAYS.  Occurrences that cannot be booked are skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.Env, cfg.LogLevel)
			eng := config.LoadEngineConfig()

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
			cache, locker := sharedBackends(rdb, eng, config.LoadCacheConfig(), log)

			a := app.New(app.Options{
				Store:     store,
				Engine:    eng,
				Cache:     cache,
				Locker:    locker,
				Publisher: publisher(config.LoadQueueConfig(), log),
				JWTSecret: cfg.JWTSecret,
				Log:       log,
			})
			if date == "" {
				date = timeutil.FormatDate(time.Now().UTC())
			}
			rep, err := a.Recurring.ProcessScheduledOccurrences(cmd.Context(), date)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(rep); encErr != nil {
				return encErr
			}
			return err
		},
	}
	run.Flags().StringVar(&date, "date", "", "treat this YYYY-MM-DD as today (default: current UTC date)")
	cmd.AddCommand(run)
	return cmd
}
