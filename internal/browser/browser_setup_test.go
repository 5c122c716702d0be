package browser

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// findChrome returns a Chrome or Chromium binary from PATH.
func findChrome() (string, bool) {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// testFixture holds a started Manager and a server that serves the storefront fixture.
type testFixture struct {
	Manager *Manager
	Session *Session
	Server  *httptest.Server
}

// setupBrowser starts a real browser. It skips under -short or when no browser is installed.
func setupBrowser(t *testing.T) *testFixture {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	path, ok := findChrome()
	if !ok {
		t.Skip("no Chrome or Chromium binary found in PATH")
	}

	cfg := newTestConfig()
	cfg.Browser.ExecPath = path
	cfg.Browser.UserAgent = "uicheck-integration/1.0"

	m := NewManager(cfg, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	require.NoError(t, m.Start(ctx))

	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer stopCancel()
		m.Stop(stopCtx)
	})

	s, err := m.Session()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(storefrontHandler))
	t.Cleanup(server.Close)

	return &testFixture{Manager: m, Session: s, Server: server}
}

const storefrontPage = `<!DOCTYPE html>
<html><head><title>Storefront</title></head>
<body>
<form action="/s" method="get">
  <input id="twotabsearchtextbox" name="k" type="text">
</form>
<a id="nav-link-accountList" href="/signin">Sign in</a>
<button id="disabled-button" disabled>Nope</button>
<div id="hidden" style="display:none">secret</div>
<div id="late"></div>
<script>
  setTimeout(function(){ document.getElementById('late').innerHTML = '<span class="arrived">here</span>'; }, 300);
</script>
<div id="navFooter">
  <a href="/about"> About Amazon </a>
  <a href="/help">Help</a>
</div>
</body></html>`

const resultsPage = `<!DOCTYPE html>
<html><head><title>Results for %s</title></head>
<body><div class="s-main-slot"><div class="s-result-item">one</div><div class="s-result-item">two</div></div></body></html>`

func storefrontHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Path == "/s" {
		q := r.URL.Query().Get("k")
		_, _ = w.Write([]byte(fmt.Sprintf(resultsPage, html.EscapeString(q))))
		return
	}
	_, _ = w.Write([]byte(storefrontPage))
}
