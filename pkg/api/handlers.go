package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/codegen"
	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/models"
	"dev/bravebird/ui-verify/pkg/scenario"
	"dev/bravebird/ui-verify/pkg/temporal/workflows"
)

// RunStore is the persistence used by the run endpoints. *database.DB implements it.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.ScenarioRun) error
	MarkRunStarted(ctx context.Context, id, workflowID, runID string, startedAt time.Time) error
	GetRun(ctx context.Context, id string) (*models.ScenarioRun, error)
	ListRuns(ctx context.Context, scenario string, limit int) ([]models.ScenarioRun, error)
	UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error)
}

// pollInterval is how often a run stream checks for progress
var pollInterval = 500 * time.Millisecond

// Handlers contains API handlers
type Handlers struct {
	store          RunStore
	temporalClient client.Client
	cfg            config.Config
	log            *zap.Logger
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers. store and temporalClient may be nil;
// the endpoints that need them answer 503.
func NewHandlers(store RunStore, temporalClient client.Client, cfg config.Config, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		cfg:            cfg,
		log:            logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handlers) defaultParams() scenario.Params {
	return scenario.Params{BaseURL: h.cfg.BaseURL, OutputDir: h.cfg.OutputDir}
}

// ==================== Scenario Handlers ====================

type scenarioSummary struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	CaptureConsole bool     `json:"capture_console"`
	StepCount      int      `json:"step_count"`
	Screenshots    []string `json:"screenshots"`
}

// ListScenarios lists the built-in scenarios
func (h *Handlers) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all := scenario.All(h.defaultParams())
	out := make([]scenarioSummary, 0, len(all))
	for _, sc := range all {
		out = append(out, scenarioSummary{
			Name:           sc.Name,
			Description:    sc.Description,
			CaptureConsole: sc.CaptureConsole,
			StepCount:      len(sc.Steps),
			Screenshots:    sc.Screenshots(),
		})
	}
	respondJSON(w, out)
}

// GetScenario returns a scenario with its steps expanded for the configured base URL
func (h *Handlers) GetScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, sc)
}

// GetScenarioScript returns the scenario as a standalone go-rod program
func (h *Handlers) GetScenarioScript(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/x-go; charset=utf-8")
	io.WriteString(w, codegen.RenderGoRod(sc, h.cfg.IdleTime))
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (models.Scenario, bool) {
	params := h.defaultParams()
	if base := r.URL.Query().Get("base_url"); base != "" {
		params.BaseURL = base
	}
	sc, err := scenario.Lookup(mux.Vars(r)["name"], params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return models.Scenario{}, false
	}
	return sc, true
}

// ==================== Run Handlers ====================

// RunScenario starts a scenario run on the Temporal worker
func (h *Handlers) RunScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.temporalClient == nil {
		http.Error(w, "Temporal not available", http.StatusServiceUnavailable)
		return
	}

	// Screenshots always go to the configured output dir, which is the
	// only place ServeScreenshot reads from.
	var req models.RunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	params := h.defaultParams()
	if req.BaseURL != "" {
		params.BaseURL = req.BaseURL
	}
	headless := h.cfg.Headless
	if req.Headless != nil {
		headless = *req.Headless
	}

	sc, err := scenario.Lookup(mux.Vars(r)["name"], params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Create run record
	runID := uuid.New().String()
	if h.store != nil {
		run := &models.ScenarioRun{
			ID:       runID,
			Scenario: sc.Name,
			BaseURL:  params.BaseURL,
			Status:   models.StatusPending,
		}
		if err := h.store.CreateRun(ctx, run); err != nil {
			http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	// Start Temporal workflow
	input := workflows.ScenarioInput{
		RunID:       runID,
		Scenario:    sc,
		Headless:    headless,
		StepTimeout: h.cfg.Timeout,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        workflows.WorkflowID(runID),
		TaskQueue: config.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.ScenarioWorkflow, input)
	if err != nil {
		if h.store != nil {
			if uerr := h.store.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); uerr != nil {
				h.log.Error("failed to mark run failed", zap.String("run_id", runID), zap.Error(uerr))
			}
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		if err := h.store.MarkRunStarted(ctx, runID, we.GetID(), we.GetRunID(), time.Now()); err != nil {
			h.log.Warn("failed to record workflow start", zap.String("run_id", runID), zap.Error(err))
		}
	}

	h.log.Info("started scenario run",
		zap.String("run_id", runID),
		zap.String("scenario", sc.Name),
		zap.String("base_url", params.BaseURL))

	respondJSON(w, map[string]interface{}{
		"run_id":               runID,
		"scenario":             sc.Name,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// ListRuns lists recent runs, optionally filtered by ?scenario=
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.store.ListRuns(ctx, r.URL.Query().Get("scenario"), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// GetRun retrieves a run with its step results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	steps, err := h.store.GetStepResults(ctx, id)
	if err != nil {
		h.log.Warn("failed to load step results", zap.String("run_id", id), zap.Error(err))
	}
	run.Steps = steps

	respondJSON(w, run)
}

// CancelRun cancels a running scenario
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Terminal() {
		http.Error(w, fmt.Sprintf("Run already %s", run.Status), http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" && h.temporalClient != nil {
		if err := h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID); err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		h.log.Warn("failed to mark run canceled", zap.String("run_id", id), zap.Error(err))
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates streams run progress via WebSocket until the run reaches a terminal status
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastStatus := models.RunStatus("")
	lastStepCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, steps, ok := h.progress(ctx, runID)
			if !ok {
				continue
			}

			if status == lastStatus && len(steps) == lastStepCount {
				continue
			}

			msg := models.WSMessage{
				Type: "run_update",
				Payload: map[string]interface{}{
					"run_id": runID,
					"status": status,
					"steps":  steps,
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

			lastStatus = status
			lastStepCount = len(steps)

			if status.Terminal() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status)))
				return
			}
		}
	}
}

// progress asks the workflow first and falls back to the database
func (h *Handlers) progress(ctx context.Context, runID string) (models.RunStatus, []models.StepResult, bool) {
	workflowID, temporalRunID := workflows.WorkflowID(runID), ""
	var run *models.ScenarioRun
	if h.store != nil {
		run, _ = h.store.GetRun(ctx, runID)
		if run != nil && run.TemporalWorkflowID != "" {
			workflowID, temporalRunID = run.TemporalWorkflowID, run.TemporalRunID
		}
	}

	// A canceled record wins over a workflow that has not observed the cancellation yet
	if run != nil && run.Status == models.StatusCanceled {
		steps, _ := h.store.GetStepResults(ctx, runID)
		return run.Status, steps, true
	}

	if h.temporalClient != nil {
		resp, err := h.temporalClient.QueryWorkflow(ctx, workflowID, temporalRunID, workflows.ProgressQuery)
		if err == nil {
			var result models.ScenarioResult
			if resp.Get(&result) == nil && result.Status != "" {
				return result.Status, result.Steps, true
			}
		}
	}

	if run == nil {
		return "", nil, false
	}
	steps, _ := h.store.GetStepResults(ctx, runID)
	return run.Status, steps, true
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a PNG from the output directory
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(mux.Vars(r)["filename"])
	if !strings.EqualFold(filepath.Ext(filename), ".png") {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	// Only files directly inside the output directory are served
	filePath := filepath.Join(h.cfg.OutputDir, filename)

	info, err := os.Stat(filePath)
	if err != nil || info.IsDir() {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
