package browser

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIntegration(t *testing.T) {
	f := setupBrowser(t)
	s := f.Session
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	opts := WaitOptions{Timeout: 3 * time.Second, Interval: 50 * time.Millisecond, Owner: 1}

	require.NoError(t, s.Navigate(ctx, f.Server.URL+"/"))

	t.Run("UserAgentOverride", func(t *testing.T) {
		var ua string
		require.NoError(t, s.runActions(ctx, chromedp.Evaluate(`navigator.userAgent`, &ua)))
		assert.Equal(t, "uicheck-integration/1.0", ua)
	})

	t.Run("ProbeStates", func(t *testing.T) {
		res, err := s.Probe(ctx, ID("twotabsearchtextbox"), 0)
		require.NoError(t, err)
		assert.Equal(t, ProbeResult{Count: 1, Visible: true, Clickable: true}, res)

		res, err = s.Probe(ctx, ID("hidden"), 0)
		require.NoError(t, err)
		assert.Equal(t, ProbeResult{Count: 1}, res)

		res, err = s.Probe(ctx, ID("disabled-button"), 0)
		require.NoError(t, err)
		assert.True(t, res.Visible)
		assert.False(t, res.Clickable)

		res, err = s.Probe(ctx, CSS("#navFooter a"), 1)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
	})

	t.Run("LinkTextWithinFooter", func(t *testing.T) {
		_, err := WaitFor(ctx, s, LinkText("About Amazon").Within(ID("navFooter")), Visible, opts)
		assert.NoError(t, err, "surrounding whitespace is trimmed")

		res, err := s.Probe(ctx, LinkText("Careers").Within(ID("navFooter")), 0)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Count)

		res, err = s.Probe(ctx, LinkText("Help").Within(ID("no-such-parent")), 0)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Count, "a missing parent yields no matches")
	})

	t.Run("WaitsForAsyncContent", func(t *testing.T) {
		el, err := WaitFor(ctx, s, XPath("//span[@class='arrived']"), Visible, opts)
		require.NoError(t, err)
		assert.Equal(t, Visible, el.Confirmed)
	})

	t.Run("HiddenElementTimesOut", func(t *testing.T) {
		short := opts
		short.Timeout = 300 * time.Millisecond
		_, err := WaitFor(ctx, s, ID("hidden"), Visible, short)
		var waitErr *WaitTimeoutError
		require.ErrorAs(t, err, &waitErr)
		assert.GreaterOrEqual(t, waitErr.Elapsed, short.Timeout)
	})

	t.Run("TypeSubmitAndTitle", func(t *testing.T) {
		box, err := WaitFor(ctx, s, ID("twotabsearchtextbox"), Visible, opts)
		require.NoError(t, err)
		require.NoError(t, s.SendKeys(ctx, box, "Headphones"))
		require.NoError(t, s.Submit(ctx, box))

		_, err = WaitFor(ctx, s, CSS("div.s-main-slot"), Present, opts)
		require.NoError(t, err)

		title, err := s.Title(ctx)
		require.NoError(t, err)
		assert.Contains(t, title, "Headphones")

		location, err := s.CurrentURL(ctx)
		require.NoError(t, err)
		assert.True(t, strings.Contains(location, "k=Headphones"))
	})

	t.Run("Screenshot", func(t *testing.T) {
		png, err := s.Screenshot(ctx, false, 90)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

		full, err := s.Screenshot(ctx, true, 100)
		require.NoError(t, err)
		assert.NotEmpty(t, full)
	})
}

func TestManagerIntegration_CrashedBrowserStopsCleanly(t *testing.T) {
	f := setupBrowser(t)

	c := chromedp.FromContext(f.Manager.browserCtx)
	require.NotNil(t, c)
	require.NotNil(t, c.Browser)
	proc := c.Browser.Process()
	require.NotNil(t, proc)
	require.NoError(t, proc.Kill())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result TeardownResult
	assert.NotPanics(t, func() { result = f.Manager.Stop(ctx) })
	if result.Err != nil {
		var teardownErr *TeardownError
		assert.ErrorAs(t, result.Err, &teardownErr)
	}

	_, err := f.Manager.Session()
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = f.Session.Title(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession, "the old handle is closed")
}
