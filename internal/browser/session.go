// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uicheck/internal/config"
)

// Session is the single tab of a started Manager. It is used by one scenario
// at a time and must not be used after the manager stops.
type Session struct {
	ctx    context.Context
	logger *zap.Logger

	navTimeout    time.Duration
	actionTimeout time.Duration
	limiter       *rate.Limiter

	mu       sync.RWMutex
	isClosed bool
}

func newSession(ctx context.Context, suite config.SuiteConfig, logger *zap.Logger) *Session {
	navTimeout := suite.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	actionTimeout := suite.DefaultTimeout
	if actionTimeout <= 0 {
		actionTimeout = DefaultTimeout
	}
	return &Session{
		ctx:           ctx,
		logger:        logger.Named("session"),
		navTimeout:    navTimeout,
		actionTimeout: actionTimeout,
		limiter:       newLimiter(suite.NavigationRate),
	}
}

func (s *Session) close() {
	s.mu.Lock()
	s.isClosed = true
	s.mu.Unlock()
}

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.isClosed {
		return ErrNoActiveSession
	}
	return nil
}

// runActions executes chromedp actions bounded by both the session lifetime and ctx.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the load event, paced by the navigation limiter.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigation to %s canceled while paced: %w", url, err)
		}
	}

	s.logger.Debug("Navigating.", zap.String("url", url))
	navCtx, navCancel := context.WithTimeout(ctx, s.navTimeout)
	defer navCancel()

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(navCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, s.navTimeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.runActions(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("reading title: %w", err)
	}
	return title, nil
}

// CurrentURL returns the URL of the loaded document.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := s.runActions(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return location, nil
}

// Probe evaluates the locator once against the live DOM.
func (s *Session) Probe(ctx context.Context, loc Locator, index int) (ProbeResult, error) {
	var res ProbeResult
	if err := s.runActions(ctx, chromedp.Evaluate(loc.probeExpr(index), &res)); err != nil {
		return ProbeResult{}, fmt.Errorf("probing %s: %w", loc, err)
	}
	return res, nil
}

// Click clicks an element confirmed Clickable.
func (s *Session) Click(ctx context.Context, el Element) error {
	if err := el.Allows(ActionClick); err != nil {
		return err
	}
	return s.interact(ctx, el, chromedp.Click(el.Locator.nodeExpr(el.Index), chromedp.ByJSPath))
}

// SendKeys types text into an element confirmed Visible or Clickable.
func (s *Session) SendKeys(ctx context.Context, el Element, text string) error {
	if err := el.Allows(ActionType); err != nil {
		return err
	}
	return s.interact(ctx, el, chromedp.SendKeys(el.Locator.nodeExpr(el.Index), text, chromedp.ByJSPath))
}

// Submit submits the form owning an element confirmed Visible or Clickable.
func (s *Session) Submit(ctx context.Context, el Element) error {
	if err := el.Allows(ActionSubmit); err != nil {
		return err
	}
	return s.interact(ctx, el, chromedp.Submit(el.Locator.nodeExpr(el.Index), chromedp.ByJSPath))
}

func (s *Session) interact(ctx context.Context, el Element, action chromedp.Action) error {
	actCtx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()
	if err := s.runActions(actCtx, action); err != nil {
		return fmt.Errorf("interacting with %s: %w", el.Locator, err)
	}
	return nil
}

// Screenshot captures the viewport as PNG, or the full page when fullPage is
// set. Full page captures are JPEG unless quality is 100.
func (s *Session) Screenshot(ctx context.Context, fullPage bool, quality int) ([]byte, error) {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	}
	if err := s.runActions(ctx, action); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}
