package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/models"
)

const (
	// ProgressQuery returns the partial ScenarioResult of a running workflow
	ProgressQuery = "getProgress"

	// browser startup may include a one-time Chromium download
	initTimeout = 5 * time.Minute

	// added on top of the step timeout so the browser-side deadline fires first
	activityGrace = 30 * time.Second
)

// WorkflowID returns the Temporal workflow ID used for a run
func WorkflowID(runID string) string {
	return "ui-verify-" + runID
}

// ScenarioWorkflow runs a scenario step by step in one browser session.
// Nothing is retried: the first failing step ends the run.
func ScenarioWorkflow(ctx workflow.Context, input ScenarioInput) (models.ScenarioResult, error) {
	logger := workflow.GetLogger(ctx)
	sc := input.Scenario
	logger.Info("Starting scenario workflow", "runID", input.RunID, "scenario", sc.Name, "steps", len(sc.Steps))

	result := models.ScenarioResult{
		RunID:    input.RunID,
		Scenario: sc.Name,
		Status:   models.StatusRunning,
		Steps:    make([]models.StepResult, 0, len(sc.Steps)),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.ScenarioResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	stepTimeout := input.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = config.DefaultTimeout
	}

	noRetry := &temporal.RetryPolicy{MaximumAttempts: 1}
	initCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: initTimeout,
		RetryPolicy:         noRetry,
	})
	stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: stepTimeout + activityGrace,
		RetryPolicy:         noRetry,
	})

	// Cleanup and persistence must still run after cancellation
	cleanupCtx, _ := workflow.NewDisconnectedContext(stepCtx)
	defer func() {
		if err := workflow.ExecuteActivity(cleanupCtx, "SaveRunResultActivity", result).Get(cleanupCtx, nil); err != nil {
			logger.Warn("Failed to persist run result", "error", err)
		}
	}()

	var session BrowserSession
	err = workflow.ExecuteActivity(initCtx, "InitializeBrowserActivity", BrowserInitInput{
		Headless:       input.Headless,
		CaptureConsole: sc.CaptureConsole,
		StepTimeout:    stepTimeout,
	}).Get(ctx, &session)
	if err != nil {
		result.Status = finalStatus(err)
		result.ErrorMessage = "Failed to initialize browser: " + err.Error()
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()
		return result, nil
	}

	for i, step := range sc.Steps {
		logger.Info("Executing step", "index", i, "type", step.Type)

		var stepResult models.StepResult
		err := workflow.ExecuteActivity(stepCtx, "ExecuteStepActivity", StepInput{
			SessionID: session.SessionID,
			Index:     i,
			Step:      step,
			ArmIdle:   sc.ArmsIdle(i),
		}).Get(ctx, &stepResult)

		if err != nil {
			status := finalStatus(err)
			result.Steps = append(result.Steps, models.StepResult{
				Index:        i,
				Type:         step.Type,
				Status:       status,
				ErrorMessage: err.Error(),
			})
			result.Status = status
			result.ErrorMessage = fmt.Sprintf("step %d (%s) failed: %v", i+1, step.Describe(), err)
			break
		}

		result.Steps = append(result.Steps, stepResult)
		result.ConsoleMessages = append(result.ConsoleMessages, stepResult.ConsoleMessages...)
	}

	// Messages logged after the last step are only handed over on close
	var late []models.ConsoleMessage
	if err := workflow.ExecuteActivity(cleanupCtx, "CloseBrowserActivity", session.SessionID).Get(cleanupCtx, &late); err != nil {
		logger.Warn("Failed to close browser session", "sessionID", session.SessionID, "error", err)
	}
	result.ConsoleMessages = append(result.ConsoleMessages, late...)

	if result.Status == models.StatusRunning {
		result.Status = models.StatusSuccess
	}
	result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()

	logger.Info("Workflow completed", "status", result.Status, "steps", len(result.Steps))
	return result, nil
}

func finalStatus(err error) models.RunStatus {
	if temporal.IsCanceledError(err) {
		return models.StatusCanceled
	}
	return models.StatusFailed
}

// ScenarioInput starts a ScenarioWorkflow
type ScenarioInput struct {
	RunID       string          `json:"run_id"`
	Scenario    models.Scenario `json:"scenario"`
	Headless    bool            `json:"headless"`
	StepTimeout time.Duration   `json:"step_timeout,omitempty"`
}

// BrowserSession holds browser session information
type BrowserSession struct {
	SessionID string `json:"session_id"`
	PageURL   string `json:"page_url"`
}

// BrowserInitInput is the input for browser initialization
type BrowserInitInput struct {
	Headless       bool          `json:"headless"`
	CaptureConsole bool          `json:"capture_console"`
	StepTimeout    time.Duration `json:"step_timeout,omitempty"`
}

// StepInput is the input for executing one scenario step
type StepInput struct {
	SessionID string      `json:"session_id"`
	Index     int         `json:"index"`
	Step      models.Step `json:"step"`

	// ArmIdle installs the network idle listener before the step acts
	ArmIdle bool `json:"arm_idle"`
}
