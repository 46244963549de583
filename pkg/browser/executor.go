package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/models"
)

// Execute runs one step on the session page. Every step is bounded by
// Options.Timeout. When armIdle is set, the network idle listener for the
// following wait_idle step is installed before the step acts.
func (s *Session) Execute(ctx context.Context, index int, step models.Step, armIdle bool) (models.StepResult, error) {
	start := time.Now()
	result := models.StepResult{
		Index:  index,
		Type:   step.Type,
		Status: models.StatusRunning,
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	if armIdle {
		s.armIdle()
	}

	err := s.execute(ctx, step, &result)
	result.Duration = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = models.StatusFailed
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("step %d (%s): %w", index+1, step.Describe(), err)
	}

	result.Status = models.StatusSuccess
	return result, nil
}

func (s *Session) execute(ctx context.Context, step models.Step, result *models.StepResult) error {
	page := s.page.Context(ctx)
	log := s.opts.Logger

	switch step.Type {
	case models.StepSetViewport:
		if step.Viewport == nil {
			return errors.New("missing viewport")
		}
		return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             step.Viewport.Width,
			Height:            step.Viewport.Height,
			DeviceScaleFactor: 1,
		})

	case models.StepNavigate:
		if err := page.Navigate(step.URL); err != nil {
			return fmt.Errorf("failed to navigate: %w", err)
		}
		return page.WaitLoad()

	case models.StepWaitIdle:
		if err := page.WaitLoad(); err != nil {
			return err
		}
		return s.waitIdle(ctx)

	case models.StepClick:
		el, err := page.Element(step.Selector)
		if err != nil {
			return fmt.Errorf("element not found: %s: %w", step.Selector, err)
		}
		return el.Click(proto.InputMouseButtonLeft, 1)

	case models.StepClickRole:
		el, err := page.ElementByJS(rod.Eval(RoleQueryJS, step.Role, step.Name))
		if err != nil {
			return fmt.Errorf("%s %q not found: %w", step.Role, step.Name, err)
		}
		return el.Click(proto.InputMouseButtonLeft, 1)

	case models.StepWaitSelector:
		if _, err := page.ElementByJS(rod.Eval(VisibleQueryJS, step.Selector)); err != nil {
			return fmt.Errorf("selector never appeared: %s: %w", step.Selector, err)
		}
		return nil

	case models.StepScreenshot:
		data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if err != nil {
			return fmt.Errorf("failed to take screenshot: %w", err)
		}
		if err := WriteScreenshot(step.Path, data); err != nil {
			return err
		}
		result.ScreenshotPath = step.Path
		log.Debug("saved screenshot", zap.String("path", step.Path), zap.Int("bytes", len(data)))
		return nil

	case models.StepPrintContent, models.StepCaptureContent:
		res, err := page.Eval(ContentJS)
		if err != nil {
			return fmt.Errorf("failed to read page content: %w", err)
		}
		result.Content = res.Value.Str()
		return nil

	default:
		return fmt.Errorf("unsupported step type: %s", step.Type)
	}
}

// WriteScreenshot stores PNG data at path, creating parent directories.
// An existing file is truncated, so repeated runs overwrite their output.
func WriteScreenshot(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create screenshot dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}
