package main

import (
	"context"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/browser"
	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/database"
	"dev/bravebird/ui-verify/pkg/temporal/activities"
	"dev/bravebird/ui-verify/pkg/temporal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHost,
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.String("host", cfg.TemporalHost), zap.Error(err))
	}
	defer c.Close()

	// Results are persisted only when MySQL is reachable
	var store activities.RunStore
	db, err := database.New(cfg.MySQLDSN)
	if err != nil {
		logger.Warn("Failed to connect to database, running without persistence", zap.Error(err))
	} else {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		store = db
	}

	acts := activities.NewActivities(browser.OptionsFromConfig(cfg, logger), store)

	// One browser per run; keep concurrency low on a dev machine
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     5,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.ScenarioWorkflow)

	w.RegisterActivity(acts.InitializeBrowserActivity)
	w.RegisterActivity(acts.ExecuteStepActivity)
	w.RegisterActivity(acts.CloseBrowserActivity)
	w.RegisterActivity(acts.SaveRunResultActivity)

	logger.Info("Starting Temporal worker",
		zap.String("task_queue", config.TaskQueue),
		zap.String("temporal_host", cfg.TemporalHost),
		zap.Bool("headless", cfg.Headless),
		zap.String("output_dir", cfg.OutputDir),
		zap.Bool("persistence", store != nil),
	)

	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}

	open := acts.Pool.Len()
	if open > 0 {
		logger.Warn("Worker stopped with open browser sessions", zap.Int("sessions", open))
	}
}
