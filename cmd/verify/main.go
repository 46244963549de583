// Command verify runs the page verification scenarios against a local dev
// server and writes their screenshots.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dev/bravebird/ui-verify/pkg/config"
)

var (
	// Runtime settings, env first, flags override
	cfg = config.Load()

	verbose bool

	// Logger
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verify",
	Short: "Capture screenshots and console output of the local web app",
	Long: `verify drives a headless Chromium through fixed scenarios against a
running dev server (default http://localhost:5173).

Built-in scenarios:
  console  print console messages emitted by /help
  sidebar  screenshot the sidebar at desktop and mobile sizes
  toggle   screenshot /help before and after the language toggle

Screenshots are written to --out-dir and overwritten on every run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr; stdout carries console text and page markup
		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "base URL of the app under test (env VERIFY_BASE_URL)")
	flags.StringVar(&cfg.OutputDir, "out-dir", cfg.OutputDir, "directory screenshots are written to (env VERIFY_OUTPUT_DIR)")
	flags.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run Chromium without a window (env VERIFY_HEADLESS)")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for each blocking step (env VERIFY_TIMEOUT)")
	flags.DurationVar(&cfg.IdleTime, "idle-time", cfg.IdleTime, "quiet period that counts as network idle (env VERIFY_IDLE_TIME)")
	flags.StringVar(&cfg.ChromeBin, "chrome-bin", cfg.ChromeBin, "Chromium binary, downloaded when empty (env CHROME_BIN)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		consoleCmd,
		sidebarCmd,
		toggleCmd,
		allCmd,
		runCmd,
		listCmd,
		exportCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
