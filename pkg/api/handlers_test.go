package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.uber.org/zap/zaptest"

	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/models"
	"dev/bravebird/ui-verify/pkg/temporal/workflows"
)

// memStore is an in-memory RunStore
type memStore struct {
	mu    sync.Mutex
	runs  map[string]*models.ScenarioRun
	steps map[string][]models.StepResult
}

func newMemStore() *memStore {
	return &memStore{
		runs:  make(map[string]*models.ScenarioRun),
		steps: make(map[string][]models.StepResult),
	}
}

func (s *memStore) CreateRun(ctx context.Context, run *models.ScenarioRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) MarkRunStarted(ctx context.Context, id, workflowID, runID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	r.TemporalWorkflowID, r.TemporalRunID = workflowID, runID
	if r.Status == models.StatusPending {
		r.Status = models.StatusRunning
	}
	if r.StartedAt == nil {
		r.StartedAt = &startedAt
	}
	return nil
}

func (s *memStore) GetRun(ctx context.Context, id string) (*models.ScenarioRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListRuns(ctx context.Context, scenario string, limit int) ([]models.ScenarioRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ScenarioRun{}
	for _, r := range s.runs {
		if scenario == "" || r.Scenario == scenario {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[id]; ok {
		r.Status, r.ErrorMessage = status, errorMsg
	}
	return nil
}

func (s *memStore) GetStepResults(ctx context.Context, runID string) ([]models.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps[runID], nil
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		BaseURL:   "http://localhost:5173",
		OutputDir: t.TempDir(),
		Headless:  true,
		Timeout:   30 * time.Second,
	}
}

func newTestServer(t *testing.T, store RunStore, tc client.Client, cfg config.Config) *httptest.Server {
	t.Helper()
	h := NewHandlers(store, tc, cfg, zaptest.NewLogger(t))
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil, testConfig(t))

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestListScenarios(t *testing.T) {
	srv := newTestServer(t, nil, nil, testConfig(t))

	resp := get(t, srv.URL+"/api/scenarios")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []scenarioSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 3)
	assert.Equal(t, "console", got[0].Name)
	assert.True(t, got[0].CaptureConsole)
	assert.Equal(t, "sidebar", got[1].Name)
	assert.Len(t, got[1].Screenshots, 2)
	assert.Equal(t, "toggle", got[2].Name)
}

func TestGetScenario(t *testing.T) {
	srv := newTestServer(t, nil, nil, testConfig(t))

	t.Run("base url override", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/scenarios/toggle?base_url=http://app.test:3000")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var sc models.Scenario
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&sc))
		assert.Equal(t, "toggle", sc.Name)
		assert.Equal(t, "http://app.test:3000/help", sc.Steps[1].URL)
	})

	t.Run("unknown", func(t *testing.T) {
		resp := get(t, srv.URL+"/api/scenarios/nope")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGetScenarioScript(t *testing.T) {
	srv := newTestServer(t, nil, nil, testConfig(t))

	resp := get(t, srv.URL+"/api/scenarios/sidebar/script")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/x-go")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "package main")
	assert.Contains(t, string(body), `"Open sidebar"`)
}

func TestRunScenario(t *testing.T) {
	t.Run("without temporal", func(t *testing.T) {
		srv := newTestServer(t, newMemStore(), nil, testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/sidebar/run", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("starts workflow and records run", func(t *testing.T) {
		store := newMemStore()
		tc := mocks.NewClient(t)
		run := mocks.NewWorkflowRun(t)
		run.On("GetID").Return("ui-verify-generated")
		run.On("GetRunID").Return("temporal-run-1")

		tc.On("ExecuteWorkflow",
			mock.Anything,
			mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
				return o.TaskQueue == config.TaskQueue && strings.HasPrefix(o.ID, "ui-verify-")
			}),
			mock.Anything,
			mock.MatchedBy(func(in workflows.ScenarioInput) bool {
				return in.Scenario.Name == "sidebar" &&
					!in.Headless &&
					in.StepTimeout == 30*time.Second &&
					in.Scenario.Steps[1].URL == "http://staging.test/"
			}),
		).Return(run, nil).Once()

		srv := newTestServer(t, store, tc, testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/sidebar/run", `{"base_url":"http://staging.test","headless":false}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		runID, _ := body["run_id"].(string)
		require.NotEmpty(t, runID)
		assert.Equal(t, "temporal-run-1", body["temporal_run_id"])

		saved, err := store.GetRun(context.Background(), runID)
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.Equal(t, models.StatusRunning, saved.Status)
		assert.Equal(t, "ui-verify-generated", saved.TemporalWorkflowID)
		assert.Equal(t, "http://staging.test", saved.BaseURL)
	})

	t.Run("workflow start failure", func(t *testing.T) {
		store := newMemStore()
		tc := mocks.NewClient(t)
		tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("namespace not found")).Once()

		srv := newTestServer(t, store, tc, testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/console/run", "{}")
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		runs, _ := store.ListRuns(context.Background(), "console", 10)
		require.Len(t, runs, 1)
		assert.Equal(t, models.StatusFailed, runs[0].Status)
	})

	t.Run("workflow finished before start is recorded", func(t *testing.T) {
		store := newMemStore()
		tc := mocks.NewClient(t)
		run := mocks.NewWorkflowRun(t)
		run.On("GetID").Return("ui-verify-fast")
		run.On("GetRunID").Return("temporal-run-2")

		// The worker saves a terminal result before ExecuteWorkflow returns
		tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				in := args.Get(3).(workflows.ScenarioInput)
				assert.NoError(t, store.UpdateRunStatus(context.Background(), in.RunID, models.StatusFailed, "browser launch failed"))
			}).
			Return(run, nil).Once()

		srv := newTestServer(t, store, tc, testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/console/run", "{}")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		runs, _ := store.ListRuns(context.Background(), "console", 10)
		require.Len(t, runs, 1)
		assert.Equal(t, models.StatusFailed, runs[0].Status)
		assert.Equal(t, "ui-verify-fast", runs[0].TemporalWorkflowID)
		assert.Equal(t, "temporal-run-2", runs[0].TemporalRunID)
	})

	t.Run("sub-second step timeout is kept", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Timeout = 750 * time.Millisecond
		tc := mocks.NewClient(t)
		run := mocks.NewWorkflowRun(t)
		run.On("GetID").Return("ui-verify-short")
		run.On("GetRunID").Return("temporal-run-3")
		tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything,
			mock.MatchedBy(func(in workflows.ScenarioInput) bool {
				return in.StepTimeout == 750*time.Millisecond
			}),
		).Return(run, nil).Once()

		srv := newTestServer(t, nil, tc, cfg)
		resp := post(t, srv.URL+"/api/scenarios/toggle/run", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("output dir cannot be chosen by the caller", func(t *testing.T) {
		store := newMemStore()
		srv := newTestServer(t, store, mocks.NewClient(t), testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/sidebar/run", `{"output_dir":"/etc"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		runs, _ := store.ListRuns(context.Background(), "", 10)
		assert.Empty(t, runs)
	})

	t.Run("unknown scenario", func(t *testing.T) {
		srv := newTestServer(t, newMemStore(), mocks.NewClient(t), testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/nope/run", "{}")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad body", func(t *testing.T) {
		srv := newTestServer(t, newMemStore(), mocks.NewClient(t), testConfig(t))
		resp := post(t, srv.URL+"/api/scenarios/console/run", "{")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRunEndpoints_NoDatabase(t *testing.T) {
	srv := newTestServer(t, nil, nil, testConfig(t))

	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/api/runs").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.URL+"/api/runs/x").StatusCode)
	assert.Equal(t, http.StatusServiceUnavailable, post(t, srv.URL+"/api/runs/x/cancel", "").StatusCode)
}

func TestGetRun(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.CreateRun(context.Background(), &models.ScenarioRun{ID: "run-1", Scenario: "toggle", Status: models.StatusSuccess}))
	store.steps["run-1"] = []models.StepResult{{Index: 0, Type: models.StepSetViewport, Status: models.StatusSuccess}}

	srv := newTestServer(t, store, nil, testConfig(t))

	resp := get(t, srv.URL+"/api/runs/run-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run models.ScenarioRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, "toggle", run.Scenario)
	assert.Len(t, run.Steps, 1)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/runs/missing").StatusCode)

	resp = get(t, srv.URL+"/api/runs?scenario=toggle")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []models.ScenarioRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	assert.Len(t, runs, 1)
}

func TestCancelRun(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, &models.ScenarioRun{ID: "running", Scenario: "sidebar", Status: models.StatusPending}))
	require.NoError(t, store.MarkRunStarted(ctx, "running", "ui-verify-running", "r1", time.Now()))
	require.NoError(t, store.CreateRun(ctx, &models.ScenarioRun{ID: "done", Scenario: "sidebar", Status: models.StatusSuccess}))

	tc := mocks.NewClient(t)
	tc.On("CancelWorkflow", mock.Anything, "ui-verify-running", "r1").Return(nil).Once()

	srv := newTestServer(t, store, tc, testConfig(t))

	resp := post(t, srv.URL+"/api/runs/running/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run, _ := store.GetRun(ctx, "running")
	assert.Equal(t, models.StatusCanceled, run.Status)

	assert.Equal(t, http.StatusConflict, post(t, srv.URL+"/api/runs/done/cancel", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, post(t, srv.URL+"/api/runs/missing/cancel", "").StatusCode)
}

func TestServeScreenshot(t *testing.T) {
	cfg := testConfig(t)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "06_desktop_sidebar.png"), png, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, "notes.txt"), []byte("secret"), 0644))

	srv := newTestServer(t, nil, nil, cfg)

	resp := get(t, srv.URL+"/api/screenshots/06_desktop_sidebar.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/screenshots/notes.txt").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/screenshots/missing.png").StatusCode)
}

func TestStreamRunUpdates(t *testing.T) {
	old := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = old })

	tc := mocks.NewClient(t)
	val := mocks.NewEncodedValue(t)
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		res := args.Get(0).(*models.ScenarioResult)
		*res = models.ScenarioResult{
			RunID:  "run-1",
			Status: models.StatusSuccess,
			Steps:  []models.StepResult{{Index: 0, Status: models.StatusSuccess}},
		}
	}).Return(nil)
	tc.On("QueryWorkflow", mock.Anything, "ui-verify-run-1", "", workflows.ProgressQuery).Return(val, nil)

	srv := newTestServer(t, nil, tc, testConfig(t))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/run-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			RunID  string              `json:"run_id"`
			Status models.RunStatus    `json:"status"`
			Steps  []models.StepResult `json:"steps"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run_update", msg.Type)
	assert.Equal(t, "run-1", msg.Payload.RunID)
	assert.Equal(t, models.StatusSuccess, msg.Payload.Status)
	assert.Len(t, msg.Payload.Steps, 1)

	// terminal status closes the stream
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
