package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/browser"
	"dev/bravebird/ui-verify/pkg/codegen"
	"dev/bravebird/ui-verify/pkg/models"
	"dev/bravebird/ui-verify/pkg/scenario"
)

// =============================================================================
// SCENARIO COMMANDS
// =============================================================================

var consoleCmd = builtinCmd(scenario.Console, "Print console messages emitted by the help page")

var sidebarCmd = builtinCmd(scenario.Sidebar, "Screenshot the sidebar at desktop and mobile viewport sizes")

var toggleCmd = builtinCmd(scenario.Toggle, "Screenshot the help page before and after switching language")

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every built-in scenario",
	Long: `Runs console, sidebar and toggle in that order, each in its own browser.
A failing scenario does not stop the others; the command fails if any did.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScenarios(cmd.Context(), cmd.OutOrStdout(), scenario.All(params()), true)
	},
}

var scenarioFile string

var runCmd = &cobra.Command{
	Use:   "run --file scenarios.yaml [name...]",
	Short: "Run scenarios defined in a YAML file",
	Long: `Loads scenarios from a YAML file and runs them in file order, or only the
named ones. {{base_url}} and {{output_dir}} in the file are replaced with
the --base-url and --out-dir values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios, err := loadScenarios(scenarioFile, args)
		if err != nil {
			return err
		}
		return runScenarios(cmd.Context(), cmd.OutOrStdout(), scenarios, true)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, sc := range scenario.All(params()) {
			fmt.Fprintf(out, "%-8s %s\n", sc.Name, sc.Description)
			for _, path := range sc.Screenshots() {
				fmt.Fprintf(out, "         -> %s\n", path)
			}
		}
		return nil
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Print a scenario as a standalone go-rod program",
	Long: `Renders a built-in scenario (or one from --file) as a go-rod program that
can be run on its own with "go run".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := findScenario(args[0])
		if err != nil {
			return err
		}

		src := codegen.RenderGoRod(sc, cfg.IdleTime)
		if exportOutput == "" || exportOutput == "-" {
			_, err := io.WriteString(cmd.OutOrStdout(), src)
			return err
		}
		if err := os.WriteFile(exportOutput, []byte(src), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOutput, err)
		}
		logger.Info("exported scenario", zap.String("scenario", sc.Name), zap.String("path", exportOutput))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "YAML scenario file")
	_ = runCmd.MarkFlagRequired("file")

	exportCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "look the scenario up in this YAML file")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
}

func builtinCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scenario.Lookup(name, params())
			if err != nil {
				return err
			}
			return runScenarios(cmd.Context(), cmd.OutOrStdout(), []models.Scenario{sc}, false)
		},
	}
}

func params() scenario.Params {
	return scenario.Params{BaseURL: cfg.BaseURL, OutputDir: cfg.OutputDir}
}

// loadScenarios reads the file and keeps only the named scenarios, in the
// order they were asked for. No names keeps everything.
func loadScenarios(path string, names []string) ([]models.Scenario, error) {
	all, err := scenario.LoadFile(path, params())
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]models.Scenario, len(all))
	for _, sc := range all {
		byName[strings.ToLower(sc.Name)] = sc
	}

	picked := make([]models.Scenario, 0, len(names))
	for _, name := range names {
		sc, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("scenario %q not found in %s", name, path)
		}
		picked = append(picked, sc)
	}
	return picked, nil
}

func findScenario(name string) (models.Scenario, error) {
	if scenarioFile == "" {
		return scenario.Lookup(name, params())
	}
	found, err := loadScenarios(scenarioFile, []string{name})
	if err != nil {
		return models.Scenario{}, err
	}
	return found[0], nil
}

// runScenarios runs each scenario in its own browser. With keepGoing, later
// scenarios still run after a failure and all errors are returned together.
func runScenarios(ctx context.Context, out io.Writer, scenarios []models.Scenario, keepGoing bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runner := browser.NewRunner(browser.OptionsFromConfig(cfg, logger), out)

	var errs []error
	for _, sc := range scenarios {
		result, err := runner.Run(ctx, sc)
		fields := []zap.Field{
			zap.String("scenario", sc.Name),
			zap.String("status", string(result.Status)),
			zap.Int("steps", len(result.Steps)),
			zap.Int64("duration_ms", result.TotalDuration),
		}
		if err != nil {
			logger.Error("scenario failed", append(fields, zap.Error(err))...)
			errs = append(errs, fmt.Errorf("%s: %w", sc.Name, err))
			if !keepGoing || ctx.Err() != nil {
				break
			}
			continue
		}
		if sc.Name == scenario.Toggle && !result.ContentChanged() {
			logger.Warn("page markup did not change after toggling language", zap.String("scenario", sc.Name))
		}
		logger.Info("scenario finished", fields...)
	}
	return errors.Join(errs...)
}
