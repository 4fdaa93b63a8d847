// Package recorder turns a finished scenario into a test-management result:
// status, comment with the scenario's captured logs, elapsed time and, on
// failure, a screenshot of the active page.
//
// Every outbound call is best-effort. A broken reporting backend or a closed
// page produces a warning and never fails the scenario or the run.
package recorder

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/artifacts"
	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/logutil"
	"github.com/kuitang/storefront-e2e/internal/metrics"
	"github.com/kuitang/storefront-e2e/internal/notify"
	"github.com/kuitang/storefront-e2e/internal/obs"
	"github.com/kuitang/storefront-e2e/internal/session"
	"github.com/kuitang/storefront-e2e/internal/testrail"
)

const (
	logHeader          = "\n\n--- Execution log ---\n"
	minReportedElapsed = 100 * time.Millisecond
	summaryErrorChars  = 300
)

// Reporter posts results. *testrail.Client implements it.
type Reporter interface {
	AddResultForCase(ctx context.Context, runID, caseID int, in testrail.ResultInput) (testrail.Result, error)
	AddAttachmentToResult(ctx context.Context, resultID int, path string) (testrail.Attachment, error)
}

// RunSource supplies the current run id; 0 disables reporting.
type RunSource interface {
	RunID() int
}

// SessionSource is the single path to the active page. *harness.Harness
// implements it.
type SessionSource interface {
	ActiveSession() *session.BrowserSession
}

// Outcome is a finished scenario.
type Outcome struct {
	Scenario harness.ScenarioInfo
	Err      error
	Elapsed  time.Duration
}

// Result describes what Record did. Skip is set when recording stopped before
// anything was posted.
type Result struct {
	CaseID        int
	RunID         int
	Status        int
	Comment       string
	Elapsed       string
	Screenshot    string
	ScreenshotURL string
	ResultID      int
	Attached      bool
	Skip          string
}

// Options configures a Recorder. Reporter, Run and Sessions may be nil.
type Options struct {
	Reporter          Reporter
	Run               RunSource
	Sessions          SessionSource
	Logs              *obs.ScenarioLogs
	Artifacts         artifacts.Store
	Metrics           *metrics.Metrics
	ScreenshotDir     string
	ScreenshotTimeout time.Duration
	Now               func() time.Time
	Logger            *slog.Logger
}

// Recorder records scenario outcomes. Record is called from the runner's
// after-scenario hook, one scenario at a time; Summary may be read from
// another goroutine.
type Recorder struct {
	opts      Options
	log       *slog.Logger
	sanitizer *bluemonday.Policy

	mu    sync.Mutex
	tally notify.Summary
}

// New creates a Recorder with defaults for unset options.
func New(opts Options) *Recorder {
	if opts.Logs == nil {
		opts.Logs = obs.Capture()
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = "screenshots"
	}
	if opts.ScreenshotTimeout <= 0 {
		opts.ScreenshotTimeout = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = obs.Pkg("recorder")
	}
	return &Recorder{
		opts:      opts,
		log:       log,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Record reports one scenario. It never returns an error and never panics
// past its boundary; the Result is for callers that want to inspect it.
func (r *Recorder) Record(ctx context.Context, o Outcome) (res Result) {
	info := o.Scenario
	log := r.log.With("feature", info.Feature, "scenario", info.Name)
	defer func() {
		if p := recover(); p != nil {
			log.Warn("recording scenario failed", "panic", fmt.Sprint(p))
		}
	}()

	res.Status = StatusFor(o.Err)
	res.Elapsed = formatElapsed(o.Elapsed)
	// Always drain, so nothing from this scenario reaches the next comment.
	logs := r.opts.Logs.Drain(info.ID)

	r.opts.Metrics.ScenarioFinished(StatusName(res.Status), o.Elapsed)

	caseID, ok := CaseID(info)
	if !ok {
		res.Skip = "no case id"
		log.Debug("not reporting scenario", "reason", res.Skip, "tags", info.Tags)
		r.count(res, info, o.Err)
		return res
	}
	res.CaseID = caseID
	log = log.With("case_id", caseID)

	if r.opts.Run != nil {
		res.RunID = r.opts.Run.RunID()
	}
	if res.RunID == 0 || r.opts.Reporter == nil {
		res.Skip = "no test run"
		log.Debug("not reporting scenario", "reason", res.Skip)
		r.count(res, info, o.Err)
		return res
	}

	if res.Status == testrail.StatusFailed {
		res.Screenshot, res.ScreenshotURL = r.screenshot(ctx, log, info, caseID)
	}
	r.count(res, info, o.Err)

	res.Comment = r.comment(res.Status, o.Err, res.ScreenshotURL, logs)
	in := testrail.ResultInput{StatusID: res.Status, Comment: res.Comment, Elapsed: res.Elapsed}

	_ = r.bestEffort(log, "add_result", "post result", func() error {
		posted, err := r.opts.Reporter.AddResultForCase(ctx, res.RunID, caseID, in)
		if err != nil {
			return err
		}
		res.ResultID = posted.ID
		return nil
	})

	if res.Screenshot != "" && res.ResultID > 0 {
		err := r.bestEffort(log, "add_attachment", "attach screenshot", func() error {
			_, err := r.opts.Reporter.AddAttachmentToResult(ctx, res.ResultID, res.Screenshot)
			return err
		})
		res.Attached = err == nil
	}

	log.Info("scenario recorded",
		"run_id", res.RunID,
		"status", StatusName(res.Status),
		"result_id", res.ResultID,
		"attached", res.Attached,
		"comment", logutil.TruncateForLog(res.Comment, 160),
	)
	return res
}

// screenshot captures the active page into ScreenshotDir and, when an artifact
// store is configured, uploads it. Empty return values mean no screenshot.
func (r *Recorder) screenshot(ctx context.Context, log *slog.Logger, info harness.ScenarioInfo, caseID int) (path, url string) {
	page, ok := r.activePage()
	if !ok {
		r.opts.Metrics.Screenshot("skipped")
		log.Info("no open page to screenshot", "stack", r.stackSnapshot())
		return "", ""
	}

	name := fmt.Sprintf("%d_%s.png", caseID, r.opts.Now().Format("20060102_150405"))
	target := filepath.Join(r.opts.ScreenshotDir, name)
	var png []byte
	err := r.bestEffort(log, "screenshot", "capture screenshot", func() error {
		var err error
		png, err = page.Screenshot(playwright.PageScreenshotOptions{
			Timeout: playwright.Float(float64(r.opts.ScreenshotTimeout.Milliseconds())),
		})
		if err != nil {
			return err
		}
		if err := os.MkdirAll(r.opts.ScreenshotDir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, png, 0o644)
	})
	if err != nil {
		r.opts.Metrics.Screenshot("failed")
		return "", ""
	}
	r.opts.Metrics.Screenshot("captured")
	log.Info("screenshot saved", "path", target)

	if r.opts.Artifacts != nil {
		_ = r.bestEffort(log, "artifact_upload", "upload screenshot", func() error {
			var err error
			url, err = r.opts.Artifacts.Put(ctx, name, png, "image/png")
			return err
		})
	}
	return target, url
}

func (r *Recorder) activePage() (playwright.Page, bool) {
	if r.opts.Sessions == nil {
		return nil, false
	}
	sess := r.opts.Sessions.ActiveSession()
	if sess == nil {
		return nil, false
	}
	return sess.ActiveOpenPage()
}

func (r *Recorder) stackSnapshot() []string {
	if r.opts.Sessions == nil || r.opts.Sessions.ActiveSession() == nil {
		return nil
	}
	return r.opts.Sessions.ActiveSession().InspectStack()
}

func (r *Recorder) comment(status int, err error, screenshotURL, logs string) string {
	var b strings.Builder
	switch status {
	case testrail.StatusPassed:
		b.WriteString("Test passed")
	case testrail.StatusBlocked:
		b.WriteString("Test skipped")
	default:
		b.WriteString("Test failed: ")
		b.WriteString(r.sanitize(err))
	}
	if screenshotURL != "" {
		b.WriteString("\n\nScreenshot: ")
		b.WriteString(screenshotURL)
	}
	if strings.TrimSpace(logs) != "" {
		b.WriteString(logHeader)
		b.WriteString(logs)
	}
	return b.String()
}

func (r *Recorder) sanitize(err error) string {
	if err == nil {
		return "unknown error"
	}
	// Driver errors quote selectors and elements (`div > span`, `<button ...>`,
	// `<nil>`). Escaping first turns them into text the policy keeps.
	return html.UnescapeString(r.sanitizer.Sanitize(html.EscapeString(err.Error())))
}

// bestEffort runs fn under the shared log-and-continue policy and counts the
// failure against call.
func (r *Recorder) bestEffort(log *slog.Logger, call, op string, fn func() error) error {
	err := obs.BestEffort(log, op, fn)
	if err != nil {
		r.opts.Metrics.ReportFailed(call)
	}
	return err
}

func (r *Recorder) count(res Result, info harness.ScenarioInfo, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch res.Status {
	case testrail.StatusPassed:
		r.tally.Passed++
	case testrail.StatusBlocked:
		r.tally.Skipped++
	default:
		r.tally.Failed++
		r.tally.Failures = append(r.tally.Failures, notify.Failure{
			CaseID:        res.CaseID,
			Scenario:      info.Name,
			Error:         logutil.TruncateForLog(r.sanitize(err), summaryErrorChars),
			ScreenshotURL: res.ScreenshotURL,
		})
	}
}

// Summary returns the pass/fail/skip tally of every recorded scenario,
// including those that were not reported.
func (r *Recorder) Summary() notify.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.tally
	s.Failures = append([]notify.Failure(nil), r.tally.Failures...)
	return s
}

func formatElapsed(d time.Duration) string {
	if d <= minReportedElapsed {
		return ""
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
