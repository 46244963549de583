//go:build integration

package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/ui-verify/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}
	db, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestRunLifecycle_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	run := &models.ScenarioRun{
		ID:       uuid.New().String(),
		Scenario: "toggle",
		BaseURL:  "http://localhost:5173",
		Status:   models.StatusPending,
	}
	require.NoError(t, db.CreateRun(ctx, run))
	require.NoError(t, db.MarkRunStarted(ctx, run.ID, "ui-verify-"+run.ID, "temporal-run", now))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, "temporal-run", got.TemporalRunID)

	result := models.ScenarioResult{
		RunID:    run.ID,
		Scenario: "toggle",
		Status:   models.StatusSuccess,
		Steps: []models.StepResult{
			{Index: 0, Type: models.StepSetViewport, Status: models.StatusSuccess},
			{Index: 1, Type: models.StepPrintContent, Status: models.StatusSuccess, Content: "<!DOCTYPE html><html></html>"},
			{Index: 2, Type: models.StepWaitIdle, Status: models.StatusSuccess,
				ConsoleMessages: []models.ConsoleMessage{{Type: "log", Text: "ready", Timestamp: now}}},
		},
	}
	require.NoError(t, db.SaveRunResult(ctx, result))
	// saving twice replaces the step rows
	require.NoError(t, db.SaveRunResult(ctx, result))

	steps, err := db.GetStepResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "<!DOCTYPE html><html></html>", steps[1].Content)
	require.Len(t, steps[2].ConsoleMessages, 1)
	assert.Equal(t, "ready", steps[2].ConsoleMessages[0].Text)

	got, err = db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.NotNil(t, got.CompletedAt)

	runs, err := db.ListRuns(ctx, "toggle", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)

	missing, err := db.GetRun(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkRunStartedKeepsTerminalStatus_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := &models.ScenarioRun{
		ID:       uuid.New().String(),
		Scenario: "console",
		BaseURL:  "http://localhost:5173",
		Status:   models.StatusPending,
	}
	require.NoError(t, db.CreateRun(ctx, run))

	// The workflow finished before the API recorded its start
	require.NoError(t, db.SaveRunResult(ctx, models.ScenarioResult{
		RunID:        run.ID,
		Scenario:     "console",
		Status:       models.StatusFailed,
		ErrorMessage: "Failed to initialize browser: no chromium",
	}))
	require.NoError(t, db.MarkRunStarted(ctx, run.ID, "ui-verify-"+run.ID, "temporal-run", time.Now()))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "temporal-run", got.TemporalRunID)
	assert.Equal(t, "ui-verify-"+run.ID, got.TemporalWorkflowID)
}
