package activities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"dev/bravebird/ui-verify/pkg/browser"
	"dev/bravebird/ui-verify/pkg/models"
	"dev/bravebird/ui-verify/pkg/temporal/workflows"
)

// BrowserPool manages browser sessions
type BrowserPool struct {
	sessions map[string]*BrowserSessionData
	mu       sync.RWMutex
}

// BrowserSessionData holds data for a browser session
type BrowserSessionData struct {
	Session   *browser.Session
	CreatedAt time.Time

	mu          sync.Mutex
	console     []models.ConsoleMessage
	consoleDone <-chan struct{}
}

func (d *BrowserSessionData) appendConsole(m models.ConsoleMessage) {
	d.mu.Lock()
	d.console = append(d.console, m)
	d.mu.Unlock()
}

// drainConsole returns the messages received since the last drain
func (d *BrowserSessionData) drainConsole() []models.ConsoleMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.console
	d.console = nil
	return out
}

// NewBrowserPool creates an empty pool
func NewBrowserPool() *BrowserPool {
	return &BrowserPool{sessions: make(map[string]*BrowserSessionData)}
}

func (p *BrowserPool) get(id string) (*BrowserSessionData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[id]
	return s, ok
}

func (p *BrowserPool) put(id string, s *BrowserSessionData) {
	p.mu.Lock()
	p.sessions[id] = s
	p.mu.Unlock()
}

func (p *BrowserPool) remove(id string) (*BrowserSessionData, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	delete(p.sessions, id)
	return s, ok
}

// Len returns the number of open sessions
func (p *BrowserPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// RunStore persists finished runs. *database.DB implements it.
type RunStore interface {
	SaveRunResult(ctx context.Context, result models.ScenarioResult) error
}

// Activities holds activity implementations
type Activities struct {
	// Options is the browser launch template; Headless and Timeout are set per run.
	Options browser.Options

	// Store may be nil, in which case results are not persisted.
	Store RunStore

	Pool *BrowserPool
}

// NewActivities creates new activities
func NewActivities(opts browser.Options, store RunStore) *Activities {
	return &Activities{
		Options: opts,
		Store:   store,
		Pool:    NewBrowserPool(),
	}
}

// InitializeBrowserActivity initializes a browser session
func (a *Activities) InitializeBrowserActivity(ctx context.Context, input workflows.BrowserInitInput) (workflows.BrowserSession, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Initializing browser session", "headless", input.Headless, "captureConsole", input.CaptureConsole)

	opts := a.Options
	opts.Headless = input.Headless
	if input.StepTimeout > 0 {
		opts.Timeout = input.StepTimeout
	}

	session, err := browser.Launch(ctx, opts)
	if err != nil {
		return workflows.BrowserSession{}, err
	}

	data := &BrowserSessionData{
		Session:   session,
		CreatedAt: time.Now(),
	}
	if input.CaptureConsole {
		data.consoleDone = session.OnConsole(data.appendConsole)
	}

	// Store session
	sessionID := uuid.New().String()
	a.Pool.put(sessionID, data)

	logger.Info("Browser session created", "sessionID", sessionID)

	return workflows.BrowserSession{
		SessionID: sessionID,
		PageURL:   session.URL(),
	}, nil
}

// ExecuteStepActivity executes a single scenario step in an existing session.
// Console messages received since the previous step are attached to the result.
func (a *Activities) ExecuteStepActivity(ctx context.Context, input workflows.StepInput) (models.StepResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Executing step", "index", input.Index, "type", input.Step.Type, "armIdle", input.ArmIdle)

	data, ok := a.Pool.get(input.SessionID)
	if !ok {
		return models.StepResult{}, fmt.Errorf("browser session not found: %s", input.SessionID)
	}

	result, err := data.Session.Execute(ctx, input.Index, input.Step, input.ArmIdle)
	result.ConsoleMessages = data.drainConsole()
	if err != nil {
		logger.Error("Step failed", "index", input.Index, "error", err)
		return result, err
	}

	activity.RecordHeartbeat(ctx, fmt.Sprintf("Completed step %d", input.Index+1))
	return result, nil
}

// CloseBrowserActivity closes a browser session and returns the console
// messages that arrived after the last step was drained.
func (a *Activities) CloseBrowserActivity(ctx context.Context, sessionID string) ([]models.ConsoleMessage, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Closing browser session", "sessionID", sessionID)

	data, ok := a.Pool.remove(sessionID)
	if !ok {
		return nil, nil // Already closed
	}

	err := data.Session.Close()
	if data.consoleDone != nil {
		<-data.consoleDone
	}
	if err != nil {
		logger.Warn("Browser close reported an error", "sessionID", sessionID, "error", err)
	}
	return data.drainConsole(), nil
}

// SaveRunResultActivity persists the final scenario result
func (a *Activities) SaveRunResultActivity(ctx context.Context, result models.ScenarioResult) error {
	logger := activity.GetLogger(ctx)

	if a.Store == nil {
		logger.Debug("No run store configured, skipping persistence", "runID", result.RunID)
		return nil
	}
	if result.RunID == "" {
		return nil
	}

	if err := a.Store.SaveRunResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save run result: %w", err)
	}

	logger.Info("Run result saved", "runID", result.RunID, "status", result.Status)
	return nil
}
