// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/uicheck/internal/browser"
	"github.com/xkilldash9x/uicheck/internal/harness"
	"github.com/xkilldash9x/uicheck/internal/reporting"
)

// -- Session Manager Mock --

// MockSessionManager mocks harness.SessionManager.
type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSessionManager) Page() (harness.Page, error) {
	args := m.Called()
	var page harness.Page
	if p := args.Get(0); p != nil {
		page = p.(harness.Page)
	}
	return page, args.Error(1)
}

func (m *MockSessionManager) Stop(ctx context.Context) browser.TeardownResult {
	args := m.Called(ctx)
	return args.Get(0).(browser.TeardownResult)
}

// -- Sink Mock --

// MockSink mocks harness.Sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) PersistReport(ctx context.Context, report *reporting.Report) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

var (
	_ harness.SessionManager = (*MockSessionManager)(nil)
	_ harness.Sink           = (*MockSink)(nil)
)
