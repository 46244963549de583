// Package codegen renders scenarios as standalone go-rod programs.
package codegen

import (
	"fmt"
	"strings"
	"time"

	"dev/bravebird/ui-verify/pkg/browser"
	"dev/bravebird/ui-verify/pkg/config"
	"dev/bravebird/ui-verify/pkg/models"
)

// consoleTextFunc mirrors browser.ConsoleText in the generated program
const consoleTextFunc = `
func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		switch {
		case !a.Value.Nil():
			parts = append(parts, a.Value.Str())
		case a.UnserializableValue != "":
			parts = append(parts, string(a.UnserializableValue))
		case a.Type == proto.RuntimeRemoteObjectTypeUndefined:
			parts = append(parts, "undefined")
		case a.Subtype == proto.RuntimeRemoteObjectSubtypeNull:
			parts = append(parts, "null")
		case a.Description != "":
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
`

// RenderGoRod generates a runnable go-rod program performing the scenario's
// steps in order. idle is the quiet period wait_idle steps wait for; zero
// means config.DefaultIdleTime.
func RenderGoRod(sc models.Scenario, idle time.Duration) string {
	if idle <= 0 {
		idle = config.DefaultIdleTime
	}

	var sb strings.Builder

	var needsRole, needsVisible, needsContent, needsIdle bool
	needsFmt := sc.CaptureConsole
	for _, step := range sc.Steps {
		switch step.Type {
		case models.StepClickRole:
			needsRole = true
		case models.StepWaitSelector:
			needsVisible = true
		case models.StepWaitIdle:
			needsIdle = true
		case models.StepPrintContent:
			needsFmt = true
			needsContent = true
		case models.StepCaptureContent:
			needsContent = true
		}
	}

	sb.WriteString("// Code generated by ui-verify export. DO NOT EDIT.\n\n")
	sb.WriteString("// Scenario: " + sc.Name + "\n")
	if sc.Description != "" {
		sb.WriteString("// " + sc.Description + "\n")
	}
	sb.WriteString("package main\n\nimport (\n")
	if needsFmt {
		sb.WriteString("\t\"fmt\"\n")
	}
	if sc.CaptureConsole {
		sb.WriteString("\t\"strings\"\n")
	}
	if needsIdle {
		sb.WriteString("\t\"time\"\n")
	}
	sb.WriteString("\n\t\"github.com/go-rod/rod\"\n")
	sb.WriteString("\t\"github.com/go-rod/rod/lib/launcher\"\n")
	if sc.CaptureConsole {
		sb.WriteString("\t\"github.com/go-rod/rod/lib/proto\"\n")
	}
	sb.WriteString(")\n\n")

	if needsIdle {
		sb.WriteString(fmt.Sprintf("const idleTime = %d * time.Millisecond\n\n", idle.Milliseconds()))
	}
	if needsRole {
		sb.WriteString("const roleQuery = `" + browser.RoleQueryJS + "`\n\n")
	}
	if needsVisible {
		sb.WriteString("const visibleQuery = `" + browser.VisibleQueryJS + "`\n\n")
	}
	if needsContent {
		sb.WriteString("const contentQuery = `" + browser.ContentJS + "`\n\n")
	}

	sb.WriteString(`func main() {
	// Launch browser
	u := launcher.New().Headless(true).MustLaunch()
	browser := rod.New().ControlURL(u).MustConnect()
	defer browser.MustClose()

	page := browser.MustPage()
`)

	if sc.CaptureConsole {
		sb.WriteString(`
	go page.EachEvent(func(e *proto.RuntimeConsoleAPICalled) {
		fmt.Println("Console message: " + consoleText(e.Args))
	})()
`)
	}

	armed := 0
	for i, step := range sc.Steps {
		sb.WriteString(fmt.Sprintf("\n\t// Step %d: %s\n", i+1, step.Describe()))

		if sc.ArmsIdle(i) {
			armed++
			sb.WriteString(fmt.Sprintf("\twaitIdle%d := page.WaitRequestIdle(idleTime, nil, nil, nil)\n", armed))
		}

		switch step.Type {
		case models.StepSetViewport:
			if step.Viewport != nil {
				sb.WriteString(fmt.Sprintf("\tpage.MustSetViewport(%d, %d, 1, false)\n",
					step.Viewport.Width, step.Viewport.Height))
			}

		case models.StepNavigate:
			sb.WriteString(fmt.Sprintf("\tpage.MustNavigate(%q).MustWaitLoad()\n", step.URL))

		case models.StepWaitIdle:
			if i > 0 && sc.ArmsIdle(i-1) {
				sb.WriteString(fmt.Sprintf("\twaitIdle%d()\n", armed))
			} else {
				sb.WriteString("\tpage.WaitRequestIdle(idleTime, nil, nil, nil)()\n")
			}

		case models.StepClick:
			sb.WriteString(fmt.Sprintf("\tpage.MustElement(%q).MustClick()\n", step.Selector))

		case models.StepClickRole:
			sb.WriteString(fmt.Sprintf("\tpage.MustElementByJS(roleQuery, %q, %q).MustClick()\n",
				step.Role, step.Name))

		case models.StepWaitSelector:
			sb.WriteString(fmt.Sprintf("\tpage.MustElementByJS(visibleQuery, %q)\n", step.Selector))

		case models.StepScreenshot:
			sb.WriteString(fmt.Sprintf("\tpage.MustScreenshot(%q)\n", step.Path))

		case models.StepPrintContent:
			sb.WriteString("\tfmt.Println(page.MustEval(contentQuery).Str())\n")

		case models.StepCaptureContent:
			sb.WriteString("\t_ = page.MustEval(contentQuery).Str()\n")

		default:
			sb.WriteString(fmt.Sprintf("\t// unsupported step type %q\n", step.Type))
		}
	}

	sb.WriteString("}\n")

	if sc.CaptureConsole {
		sb.WriteString(consoleTextFunc)
	}
	return sb.String()
}
