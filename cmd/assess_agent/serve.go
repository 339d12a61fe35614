package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonathan/credibility-assessor/internal/reaper"
	"github.com/jonathan/credibility-assessor/internal/server"
)

var (
	servePort      int
	serveNoReaper  bool
	serveMemory    bool
	reaperSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes documents, questionnaires, batch-by-batch assessments,
SSE-streamed assessments, progress, reports and Prometheus metrics.

Uses PostgreSQL when DATABASE_URL is set and an in-memory store otherwise.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Use the in-memory store even if DATABASE_URL is set")
	serveCmd.Flags().BoolVar(&serveNoReaper, "no-reaper", false, "Do not fail stale assessments on a schedule")
	serveCmd.Flags().StringVar(&reaperSchedule, "reaper-schedule", reaper.DefaultSchedule, "Cron schedule (with seconds) for the stale assessment sweep")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{memoryStore: serveMemory})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(server.Config{Port: servePort}, server.Dependencies{
		Service:  a.svc,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	if !serveNoReaper {
		r := reaper.New(a.store, cfg.StaleAfter(), reaperSchedule, a.logger, a.metrics)
		if err := r.Start(); err != nil {
			return err
		}
		srv.OnShutdown(r.Stop)
	}

	return srv.Start()
}
