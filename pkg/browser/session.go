// Package browser drives a single Chromium page through go-rod and executes
// scenario steps against it.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"dev/bravebird/ui-verify/pkg/config"
)

// Options configures how the browser is launched and how long steps may block
type Options struct {
	// Bin is the Chromium binary. Empty lets the launcher find or download one.
	Bin string

	// ControlURL connects to an already running browser instead of launching one.
	ControlURL string

	Headless bool

	// Timeout bounds every blocking step. Default: 30s.
	Timeout time.Duration

	// IdleTime is how long the network must stay quiet to count as idle. Default: 500ms.
	IdleTime time.Duration

	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultTimeout
	}
	if o.IdleTime <= 0 {
		o.IdleTime = config.DefaultIdleTime
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// OptionsFromConfig maps the runtime configuration onto browser options
func OptionsFromConfig(cfg config.Config, logger *zap.Logger) Options {
	return Options{
		Bin:      cfg.ChromeBin,
		Headless: cfg.Headless,
		Timeout:  cfg.Timeout,
		IdleTime: cfg.IdleTime,
		Logger:   logger,
	}
}

// Session is one browser instance with one page. It is not safe for
// concurrent step execution.
type Session struct {
	opts    Options
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher

	// ctx lives as long as the session so listeners survive individual steps.
	ctx    context.Context
	cancel context.CancelFunc

	idle      *idleWaiter
	closeOnce sync.Once
}

// Launch starts Chromium (or connects to opts.ControlURL) and opens a blank page.
// The browser outlives ctx; release it with Close.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	opts.defaults()
	log := opts.Logger

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var l *launcher.Launcher
	wsURL := opts.ControlURL
	if wsURL == "" {
		l = launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}

		// Flags for container environments
		l = l.Set("no-sandbox")
		l = l.Set("disable-gpu")
		l = l.Set("disable-dev-shm-usage")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		wsURL = u
		log.Debug("launched browser", zap.String("url", wsURL), zap.Bool("headless", opts.Headless))
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:    opts,
		browser: b,
		page:    page,
		lnch:    l,
		ctx:     sctx,
		cancel:  cancel,
	}, nil
}

// Close releases the browser process. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.browser != nil {
			err = s.browser.Close()
		}
		if s.lnch != nil {
			s.lnch.Cleanup()
		}
	})
	return err
}

// URL returns the current page URL
func (s *Session) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
