package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/models"
)

// Runner executes whole scenarios locally, one browser per run. Console
// messages and printed markup go to out.
type Runner struct {
	opts Options
	out  io.Writer
	mu   sync.Mutex
}

// NewRunner creates a Runner writing diagnostic output to out
func NewRunner(opts Options, out io.Writer) *Runner {
	opts.defaults()
	return &Runner{opts: opts, out: out}
}

// Run launches a browser, executes the steps in order and closes the browser
// on every exit path. The first failing step aborts the run.
func (r *Runner) Run(ctx context.Context, sc models.Scenario) (result models.ScenarioResult, err error) {
	log := r.opts.Logger.With(zap.String("scenario", sc.Name))
	start := time.Now()

	result = models.ScenarioResult{
		Scenario: sc.Name,
		Status:   models.StatusRunning,
		Steps:    make([]models.StepResult, 0, len(sc.Steps)),
	}
	defer func() {
		result.TotalDuration = time.Since(start).Milliseconds()
		if err != nil {
			result.Status = models.StatusFailed
			result.ErrorMessage = err.Error()
		}
	}()

	session, err := Launch(ctx, r.opts)
	if err != nil {
		return result, err
	}

	var (
		consoleMu   sync.Mutex
		console     []models.ConsoleMessage
		consoleDone <-chan struct{}
	)
	if sc.CaptureConsole {
		consoleDone = session.OnConsole(func(m models.ConsoleMessage) {
			consoleMu.Lock()
			console = append(console, m)
			consoleMu.Unlock()
			r.printf("Console message: %s\n", m.Text)
		})
	}

	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("failed to close browser", zap.Error(cerr))
		}
		if consoleDone != nil {
			<-consoleDone
		}
		consoleMu.Lock()
		result.ConsoleMessages = console
		consoleMu.Unlock()
	}()

	for i, step := range sc.Steps {
		log.Info("executing step", zap.Int("step", i+1), zap.String("action", step.Describe()))

		sr, err := session.Execute(ctx, i, step, sc.ArmsIdle(i))
		result.Steps = append(result.Steps, sr)
		if err != nil {
			log.Error("step failed", zap.Int("step", i+1), zap.Error(err))
			return result, err
		}

		switch step.Type {
		case models.StepPrintContent:
			r.printf("%s\n", sr.Content)
		case models.StepScreenshot:
			log.Info("saved screenshot", zap.String("path", sr.ScreenshotPath))
		}
	}

	result.Status = models.StatusSuccess
	log.Info("scenario completed", zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (r *Runner) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}
