// Package scenario holds the built-in verification scenarios and loads
// custom ones from YAML files.
package scenario

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"dev/bravebird/ui-verify/pkg/models"
)

const (
	Console = "console"
	Sidebar = "sidebar"
	Toggle  = "toggle"
)

const (
	HelpPath             = "/help"
	OpenSidebarName      = "Open sidebar"
	HelpLinkSelector     = `a[href="/help"]`
	LanguageToggleTestID = "language-toggle-button"
)

// Params are the run parameters substituted into a built-in scenario
type Params struct {
	BaseURL   string
	OutputDir string
}

// ConsoleLogger prints every console message the help page emits until the
// network goes idle.
func ConsoleLogger(p Params) models.Scenario {
	return models.Scenario{
		Name:           Console,
		Description:    "Print console messages emitted by the help page",
		CaptureConsole: true,
		Steps: []models.Step{
			setViewport(models.MobileViewport),
			{Type: models.StepNavigate, URL: join(p.BaseURL, HelpPath)},
			{Type: models.StepWaitIdle},
		},
	}
}

// SidebarVerifier captures the sidebar at desktop size, then opens it at
// mobile size and captures it again once the help link is present.
func SidebarVerifier(p Params) models.Scenario {
	root := join(p.BaseURL, "/")
	return models.Scenario{
		Name:        Sidebar,
		Description: "Screenshot the sidebar in desktop and mobile viewports",
		Steps: []models.Step{
			setViewport(models.DesktopViewport),
			{Type: models.StepNavigate, URL: root},
			{Type: models.StepWaitIdle},
			{Type: models.StepScreenshot, Path: filepath.Join(p.OutputDir, "06_desktop_sidebar.png")},

			setViewport(models.MobileViewport),
			{Type: models.StepNavigate, URL: root},
			{Type: models.StepWaitIdle},
			{Type: models.StepClickRole, Role: "button", Name: OpenSidebarName},
			{Type: models.StepWaitSelector, Selector: HelpLinkSelector},
			{Type: models.StepScreenshot, Path: filepath.Join(p.OutputDir, "07_mobile_sidebar.png")},
		},
	}
}

// ToggleVerifier captures the help page before and after switching language.
func ToggleVerifier(p Params) models.Scenario {
	return models.Scenario{
		Name:        Toggle,
		Description: "Screenshot the help page before and after the language toggle",
		Steps: []models.Step{
			setViewport(models.MobileViewport),
			{Type: models.StepNavigate, URL: join(p.BaseURL, HelpPath)},
			{Type: models.StepWaitIdle},
			{Type: models.StepPrintContent},
			{Type: models.StepScreenshot, Path: filepath.Join(p.OutputDir, "06_help_page_with_toggle_en.png")},
			{Type: models.StepClick, Selector: TestIDSelector(LanguageToggleTestID)},
			{Type: models.StepWaitIdle},
			{Type: models.StepCaptureContent},
			{Type: models.StepScreenshot, Path: filepath.Join(p.OutputDir, "07_help_page_with_toggle_ur.png")},
		},
	}
}

var builtins = map[string]func(Params) models.Scenario{
	Console: ConsoleLogger,
	Sidebar: SidebarVerifier,
	Toggle:  ToggleVerifier,
}

// Names returns the built-in scenario names in sorted order
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named built-in scenario
func Lookup(name string, p Params) (models.Scenario, error) {
	build, ok := builtins[strings.ToLower(name)]
	if !ok {
		return models.Scenario{}, fmt.Errorf("unknown scenario %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return build(p), nil
}

// All builds every built-in scenario in name order
func All(p Params) []models.Scenario {
	out := make([]models.Scenario, 0, len(builtins))
	for _, name := range Names() {
		out = append(out, builtins[name](p))
	}
	return out
}

// TestIDSelector returns the CSS selector for a data-testid value
func TestIDSelector(id string) string {
	return fmt.Sprintf(`[data-testid="%s"]`, id)
}

func setViewport(v models.Viewport) models.Step {
	return models.Step{Type: models.StepSetViewport, Viewport: &v}
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
