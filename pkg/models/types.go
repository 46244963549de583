package models

import (
	"fmt"
	"time"
)

// ==================== Viewport Types ====================

// Viewport is the simulated browser window size used for a page load
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

var (
	DesktopViewport = Viewport{Width: 1280, Height: 720}
	MobileViewport  = Viewport{Width: 375, Height: 667}
)

// ==================== Step Types ====================

// StepType represents one automation call of a scenario
type StepType string

const (
	StepSetViewport    StepType = "set_viewport"    // Resize the viewport
	StepNavigate       StepType = "navigate"        // Navigate to URL and wait for load
	StepWaitIdle       StepType = "wait_idle"       // Wait for network idle
	StepClick          StepType = "click"           // Click a CSS selector
	StepClickRole      StepType = "click_role"      // Click by ARIA role and accessible name
	StepWaitSelector   StepType = "wait_selector"   // Block until a CSS selector matches
	StepScreenshot     StepType = "screenshot"      // Capture the viewport as PNG
	StepPrintContent   StepType = "print_content"   // Print full page markup to stdout
	StepCaptureContent StepType = "capture_content" // Record page markup without printing
)

// Step is a single automation call with its parameters
type Step struct {
	Type     StepType  `json:"type" yaml:"type"`
	URL      string    `json:"url,omitempty" yaml:"url,omitempty"`
	Selector string    `json:"selector,omitempty" yaml:"selector,omitempty"`
	Role     string    `json:"role,omitempty" yaml:"role,omitempty"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Viewport *Viewport `json:"viewport,omitempty" yaml:"viewport,omitempty"`
}

// Describe returns a short human readable form of the step
func (s Step) Describe() string {
	switch s.Type {
	case StepSetViewport:
		if s.Viewport != nil {
			return fmt.Sprintf("set viewport %dx%d", s.Viewport.Width, s.Viewport.Height)
		}
	case StepNavigate:
		return "navigate " + s.URL
	case StepClick:
		return "click " + s.Selector
	case StepClickRole:
		return fmt.Sprintf("click %s %q", s.Role, s.Name)
	case StepWaitSelector:
		return "wait for " + s.Selector
	case StepScreenshot:
		return "screenshot " + s.Path
	}
	return string(s.Type)
}

// ==================== Scenario Types ====================

// Scenario is a named, ordered list of steps run against one page
type Scenario struct {
	Name           string `json:"name" yaml:"name"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	CaptureConsole bool   `json:"capture_console" yaml:"capture_console"`
	Steps          []Step `json:"steps" yaml:"steps"`
}

// Screenshots returns the output paths the scenario writes, in order
func (s Scenario) Screenshots() []string {
	var paths []string
	for _, step := range s.Steps {
		if step.Type == StepScreenshot {
			paths = append(paths, step.Path)
		}
	}
	return paths
}

// ArmsIdle reports whether step i must install the network idle listener
// before acting, because the step after it waits for network idle.
func (s Scenario) ArmsIdle(i int) bool {
	if i < 0 || i+1 >= len(s.Steps) {
		return false
	}
	switch s.Steps[i].Type {
	case StepNavigate, StepClick, StepClickRole:
		return s.Steps[i+1].Type == StepWaitIdle
	}
	return false
}

// ==================== Result Types ====================

// RunStatus represents the status of a scenario run or step
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// Terminal reports whether no further transitions are expected
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// ConsoleMessage is one console API call emitted by the page
type ConsoleMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult represents the result of executing a single step
type StepResult struct {
	Index           int              `json:"index"`
	Type            StepType         `json:"type"`
	Status          RunStatus        `json:"status"`
	ScreenshotPath  string           `json:"screenshot_path,omitempty"`
	Content         string           `json:"content,omitempty"`
	ConsoleMessages []ConsoleMessage `json:"console_messages,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Duration        int64            `json:"duration_ms"`
}

// ScenarioResult represents the result of a whole scenario run
type ScenarioResult struct {
	RunID           string           `json:"run_id,omitempty"`
	Scenario        string           `json:"scenario"`
	Status          RunStatus        `json:"status"`
	Steps           []StepResult     `json:"steps"`
	ConsoleMessages []ConsoleMessage `json:"console_messages,omitempty"`
	TotalDuration   int64            `json:"total_duration_ms"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// Contents returns the markup captured by print_content and capture_content steps
func (r ScenarioResult) Contents() []string {
	var out []string
	for _, step := range r.Steps {
		if step.Type == StepPrintContent || step.Type == StepCaptureContent {
			out = append(out, step.Content)
		}
	}
	return out
}

// ContentChanged compares the first and last captured markup.
// It is false when fewer than two captures exist.
func (r ScenarioResult) ContentChanged() bool {
	contents := r.Contents()
	if len(contents) < 2 {
		return false
	}
	return contents[0] != contents[len(contents)-1]
}

// ==================== Run Types ====================

// ScenarioRun represents a persisted remote execution of a scenario
type ScenarioRun struct {
	ID                 string     `json:"id" db:"id"`
	Scenario           string     `json:"scenario" db:"scenario"`
	BaseURL            string     `json:"base_url" db:"base_url"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	Status             RunStatus  `json:"status" db:"status"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`

	// Computed fields
	Steps []StepResult `json:"steps,omitempty"`
}

// ==================== API Request/Response Types ====================

// RunRequest represents a request to execute a scenario remotely
type RunRequest struct {
	BaseURL  string `json:"base_url"`
	Headless *bool  `json:"headless,omitempty"`
}

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
