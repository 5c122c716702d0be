// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uicheck/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the lifecycle of one browser process and the single session on it.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	mu              sync.Mutex
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	session         *Session
}

// NewManager creates a manager. No browser is launched until Start.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
}

// Start launches the browser, applies the user agent override and confirms the
// browser answers by loading about:blank, all within browser.launch_timeout.
// Any failure is returned as a *SessionStartError and leaves nothing running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return ErrSessionActive
	}

	launchTimeout := m.cfg.Browser.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 45 * time.Second
	}
	m.logger.Info("Launching browser.",
		zap.Bool("headless", m.cfg.Browser.Headless),
		zap.Duration("launch_timeout", launchTimeout))

	// The browser must survive cancellation of ctx so Stop can still close it cleanly.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(m.cfg.Browser)...)
	sugar := m.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)
	abort := func(err error) error {
		browserCancel()
		allocCancel()
		return &SessionStartError{Err: err}
	}

	// The first Run allocates the process. It must not carry a timeout of its
	// own, because canceling that context would also close the browser.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	timer := time.NewTimer(launchTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			return abort(err)
		}
	case <-timer.C:
		return abort(fmt.Errorf("browser did not start within %s", launchTimeout))
	case <-ctx.Done():
		return abort(context.Cause(ctx))
	}

	probeCtx, cancelProbe := context.WithTimeout(browserCtx, launchTimeout)
	defer cancelProbe()
	probeCtx, cancelCombined := CombineContext(probeCtx, ctx)
	defer cancelCombined()

	var actions []chromedp.Action
	if ua := m.cfg.Browser.UserAgent; ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
	}
	actions = append(actions, chromedp.Navigate("about:blank"))
	if err := chromedp.Run(probeCtx, actions...); err != nil {
		return abort(fmt.Errorf("browser failed to respond: %w", err))
	}

	m.allocatorCancel = allocCancel
	m.browserCtx = browserCtx
	m.browserCancel = browserCancel
	m.session = newSession(browserCtx, m.cfg.Suite, m.logger)

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// Session returns the live session, or ErrNoActiveSession before Start or after Stop.
func (m *Manager) Session() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrNoActiveSession
	}
	return m.session, nil
}

// Stop closes the session and the browser process. It never panics and never
// returns an error; failures are logged and reported in the result. Calling
// it before Start, twice, or after the browser crashed is fine.
func (m *Manager) Stop(ctx context.Context) (result TeardownResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result.Err = &TeardownError{Err: fmt.Errorf("panic during teardown: %v", r)}
		}
		result.Duration = time.Since(start)
		if result.Err != nil {
			m.logger.Warn("Browser teardown finished with errors.",
				zap.Error(result.Err), zap.Duration("duration", result.Duration))
		} else {
			m.logger.Debug("Browser teardown complete.", zap.Duration("duration", result.Duration))
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCtx == nil {
		return TeardownResult{}
	}

	if m.session != nil {
		m.session.close()
		m.session = nil
	}

	var errs []error

	// Ask the browser to close gracefully, bounded by ctx and the grace period.
	closed := make(chan error, 1)
	browserCtx := m.browserCtx
	go func() { closed <- chromedp.Cancel(browserCtx) }()

	grace := time.NewTimer(shutdownGracePeriod)
	defer grace.Stop()
	select {
	case err := <-closed:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		}
	case <-grace.C:
		errs = append(errs, fmt.Errorf("browser did not close within %s", shutdownGracePeriod))
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("teardown interrupted: %w", context.Cause(ctx)))
	}

	// Canceling the allocator kills the process if it is still around and waits for it.
	m.browserCancel()
	m.allocatorCancel()
	m.browserCtx = nil
	m.browserCancel = nil
	m.allocatorCancel = nil

	if len(errs) > 0 {
		return TeardownResult{Err: &TeardownError{Err: errors.Join(errs...)}}
	}
	return TeardownResult{}
}

// allocatorFlag is one Chrome command line switch.
type allocatorFlag struct {
	Name  string
	Value interface{}
}

// allocatorFlags lists the switches added on top of chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) []allocatorFlag {
	flags := []allocatorFlag{
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.Headless},
		{"disable-extensions", true},
	}
	if cfg.IgnoreTLSErrors {
		flags = append(flags,
			allocatorFlag{"ignore-certificate-errors", true},
			allocatorFlag{"allow-insecure-localhost", true},
		)
	}
	if cfg.UserAgent != "" {
		flags = append(flags, allocatorFlag{"user-agent", cfg.UserAgent})
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		flags = append(flags, allocatorFlag{"window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)})
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			flags = append(flags, allocatorFlag{flagName, parts[1]})
		} else {
			flags = append(flags, allocatorFlag{flagName, true})
		}
	}

	// Flags required inside containers.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			allocatorFlag{"no-sandbox", true},
			allocatorFlag{"disable-dev-shm-usage", true},
		)
	}
	return flags
}

// AllocatorOptions assembles the exec allocator options for the configured browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
