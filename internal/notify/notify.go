// Package notify sends the end-of-run summary: an email through Resend when
// an API key is configured, a log line otherwise.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kuitang/storefront-e2e/internal/obs"
)

// Notifier delivers a run summary.
type Notifier interface {
	Send(ctx context.Context, s Summary) error
}

// Failure is one failed scenario in a summary.
type Failure struct {
	CaseID        int
	Scenario      string
	Error         string
	ScreenshotURL string
}

// Summary describes a finished run.
type Summary struct {
	RunName  string
	RunID    int
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Failures []Failure
	ExitCode int
}

// Total returns the number of recorded scenarios.
func (s Summary) Total() int {
	return s.Passed + s.Failed + s.Skipped
}

// Subject returns the email subject line.
func (s Summary) Subject() string {
	verdict := "PASSED"
	if s.Failed > 0 || s.ExitCode != 0 {
		verdict = "FAILED"
	}
	name := s.RunName
	if name == "" {
		name = "storefront e2e"
	}
	return fmt.Sprintf("[%s] %s: %d passed, %d failed, %d skipped", verdict, name, s.Passed, s.Failed, s.Skipped)
}

// New returns a Resend notifier when apiKey is set and a log notifier
// otherwise.
func New(apiKey, from string, to []string) Notifier {
	if apiKey == "" || len(to) == 0 {
		return &LogNotifier{log: obs.Pkg("notify")}
	}
	return NewResendNotifier(apiKey, from, to)
}

// LogNotifier writes the summary to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

func (n *LogNotifier) Send(_ context.Context, s Summary) error {
	log := n.log
	if log == nil {
		log = obs.Pkg("notify")
	}
	log.Info("run summary",
		"run", s.RunName,
		"run_id", s.RunID,
		"passed", s.Passed,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"duration", s.Duration.Round(time.Second).String(),
		"exit_code", s.ExitCode,
	)
	for _, f := range s.Failures {
		log.Info("failed scenario", "case_id", f.CaseID, "scenario", f.Scenario, "error", f.Error, "screenshot", f.ScreenshotURL)
	}
	return nil
}

// MockNotifier captures summaries for tests.
type MockNotifier struct {
	mu        sync.Mutex
	Summaries []Summary
	Err       error
}

func (m *MockNotifier) Send(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Summaries = append(m.Summaries, s)
	return m.Err
}

// Last returns the most recent summary, or the zero value.
func (m *MockNotifier) Last() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Summaries) == 0 {
		return Summary{}
	}
	return m.Summaries[len(m.Summaries)-1]
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Summaries)
}
