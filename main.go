package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ransomwatch/auth"
	"ransomwatch/classifier"
	"ransomwatch/config"
	"ransomwatch/database"
	"ransomwatch/logger"
	"ransomwatch/metrics"
	"ransomwatch/pipeline"
	"ransomwatch/reports"
	"ransomwatch/scraper"
	"ransomwatch/services"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds everything a command needs once config is loaded.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	store   database.Store
	metrics *metrics.Pipeline
	engine  *pipeline.Engine
	runner  *pipeline.Runner
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("configuring logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := database.Open(ctx, cfg.Database, logger.WithComponent(log, "database"))
	if err != nil {
		log.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open store")
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, store: store}
	a.closers = append(a.closers, func() { _ = store.Close() })

	a.metrics = metrics.New(prometheus.DefaultRegisterer)

	home, err := pipeline.NewHomeMarket(cfg.HomeMarket)
	if err != nil {
		a.Close()
		return nil, err
	}

	var capturer pipeline.Capturer
	if cfg.Screenshots.Enabled {
		capturer = scraper.New(cfg.Screenshots, logger.WithComponent(log, "scraper"))
	}

	dispatcher, closeDispatcher := reports.FromConfig(cfg.Notifications, logger.WithComponent(log, "reports"), a.metrics)
	a.closers = append(a.closers, closeDispatcher)

	feeds := services.NewFeedClient(cfg.Feeds, services.NewArchiver(cfg.ArchiveDir), logger.WithComponent(log, "feeds"))

	a.engine = pipeline.NewEngine(cfg.Pipeline, store, classifier.New(), capturer, home,
		logger.WithComponent(log, "pipeline"), a.metrics)
	a.runner = pipeline.NewRunner(feeds, a.engine, dispatcher, store, logger.WithComponent(log, "runner"), a.metrics)
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ransomwatch",
		Short:         "Ransomware leak-site and wallet monitoring pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config file (default "+config.DefaultPath+")")

	root.AddCommand(
		newIngestCmd(),
		newScheduleCmd(),
		newEnrichCmd(),
		newStatsCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newHashPasswordCmd(),
	)
	return root
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch every feed once and ingest it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.runner.RunOnce(ctx)
			if report != nil {
				_ = printJSON(cmd, report)
			}
			return err
		},
	}
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run ingestion and the daily summary on their cron schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			log := logger.WithComponent(a.logger, "scheduler")

			c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
			if _, err := c.AddFunc(a.cfg.Schedule.Ingest, func() {
				if _, err := a.runner.RunOnce(ctx); err != nil {
					log.Warn().Err(err).Msg("Ingestion run aborted")
				}
			}); err != nil {
				return fmt.Errorf("ingest schedule %q: %w", a.cfg.Schedule.Ingest, err)
			}
			if spec := a.cfg.Schedule.DailySummary; spec != "" {
				if _, err := c.AddFunc(spec, func() {
					if _, err := a.runner.SendDailySummary(ctx); err != nil {
						log.Error().Err(err).Msg("Daily summary failed")
					}
				}); err != nil {
					return fmt.Errorf("daily summary schedule %q: %w", spec, err)
				}
			}

			if a.cfg.MetricsAddr != "" {
				srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("Metrics server stopped")
					}
				}()
				defer shutdown(srv)
			}

			c.Start()
			log.Info().
				Str("ingest", a.cfg.Schedule.Ingest).
				Str("daily_summary", a.cfg.Schedule.DailySummary).
				Msg("Scheduler started")

			<-ctx.Done()
			log.Info().Msg("Stopping scheduler")
			<-c.Stop().Done()
			return nil
		},
	}
}

func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Re-run the classifier over every stored post",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.Reenrich(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func newStatsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard summary as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := database.Open(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Stats(ctx, top)
			if err != nil {
				return err
			}
			data, err := reports.GenerateJSON(summary, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().IntVar(&top, "top", 5, "number of buckets per ranking")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only stats API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			authSvc, err := auth.NewService(cfg.API.JWTSecret, cfg.API.AdminUser, cfg.API.AdminPasswordHash, cfg.API.TokenTTL)
			if err != nil {
				return err
			}
			store, err := database.Open(ctx, cfg.Database, logger.WithComponent(log, "database"))
			if err != nil {
				return err
			}
			defer store.Close()

			// /metrics here serves the runtime collectors only; pipeline
			// counters are exported by the schedule process.
			apiLog := logger.WithComponent(log, "api")
			srv := &http.Server{
				Addr:              cfg.API.Listen,
				Handler:           newAPIHandler(store, authSvc, apiLog),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdown(srv)
			}()

			apiLog.Info().Str("addr", cfg.API.Listen).Msg("Starting API server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}
	run := func(up bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrations apply to postgres only, driver is %q", cfg.Database.Driver)
			}
			return database.MigratePostgres(cmd.Context(), cfg.Database.DSN, logger.WithComponent(log, "migrate"), up)
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(true)},
		&cobra.Command{Use: "down", Short: "Roll back all migrations", RunE: run(false)},
	)
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for api.admin_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
