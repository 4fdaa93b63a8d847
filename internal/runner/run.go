package runner

import (
	"context"
	"os"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
	"github.com/google/uuid"

	"github.com/kuitang/storefront-e2e/internal/artifacts"
	"github.com/kuitang/storefront-e2e/internal/config"
	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/metrics"
	"github.com/kuitang/storefront-e2e/internal/notify"
	"github.com/kuitang/storefront-e2e/internal/obs"
	"github.com/kuitang/storefront-e2e/internal/recorder"
	"github.com/kuitang/storefront-e2e/internal/steps"
	"github.com/kuitang/storefront-e2e/internal/testrail"
)

// Run executes the configured features and returns godog's exit status.
// Reporting, archiving, metrics and notification failures are logged and do
// not change the status.
func Run(ctx context.Context, cfg *config.Config) (int, error) {
	log := obs.Pkg("runner")
	started := time.Now()
	runKey := uuid.NewString()
	m := metrics.New()

	hopts := harness.Options{
		Headless:       cfg.Headless,
		Args:           cfg.BrowserArgs,
		DefaultTimeout: cfg.DefaultTimeout,
		Logs:           obs.Capture(),
		Metrics:        m,
	}
	h, err := harness.Launch(hopts)
	if err != nil {
		log.Error("browser launch failed; every scenario will be skipped", "error", err)
		h = harness.New(nil, hopts)
	}
	defer h.Close()

	var (
		run      *testrail.Run
		reporter recorder.Reporter
	)
	if cfg.ReportingEnabled() {
		client := newTestRailClient(cfg)
		run, err = testrail.OpenRun(ctx, client, testrail.Plan{
			ProjectID:     cfg.TestRail.ProjectID,
			SuiteID:       cfg.TestRail.SuiteID,
			SectionID:     cfg.TestRail.SectionID,
			MilestoneID:   cfg.TestRail.MilestoneID,
			ExistingRunID: cfg.TestRail.RunID,
			NamePrefix:    cfg.TestRail.RunNamePrefix,
		})
		if err != nil {
			log.Warn("opening test run failed; results will not be reported", openRunAttrs(err)...)
		} else {
			reporter = client
		}
	}

	var store artifacts.Store
	if cfg.ArtifactsEnabled() {
		s3store, err := artifacts.New(ctx, artifacts.Config{
			Endpoint:        cfg.Artifacts.Endpoint,
			Region:          cfg.Artifacts.Region,
			AccessKeyID:     cfg.Artifacts.AccessKeyID,
			SecretAccessKey: cfg.Artifacts.SecretAccessKey,
			Bucket:          cfg.Artifacts.Bucket,
			PublicURL:       cfg.Artifacts.PublicURL,
			Prefix:          cfg.Artifacts.Prefix,
			UsePathStyle:    cfg.Artifacts.UsePathStyle,
		})
		if err != nil {
			log.Warn("artifact store unavailable; screenshots stay local", "error", err)
		} else {
			store = s3store
		}
	}

	rec := recorder.New(recorder.Options{
		Reporter:          reporter,
		Run:               run,
		Sessions:          h,
		Logs:              obs.Capture(),
		Artifacts:         store,
		Metrics:           m,
		ScreenshotDir:     cfg.ScreenshotDir,
		ScreenshotTimeout: cfg.ScreenshotTimeout,
	})
	suite := NewSuite(h, rec, steps.New(stepOptions(cfg)), runKey)

	status := suite.TestSuite(&godog.Options{
		Format:         cfg.Format,
		Paths:          cfg.FeaturePaths,
		Tags:           cfg.Tags,
		StopOnFailure:  cfg.StopOnFailure,
		Strict:         true,
		Output:         colors.Colored(os.Stdout),
		DefaultContext: ctx,
	}).Run()

	_ = run.Close(ctx)

	if !cfg.KeepScreenshots {
		_ = obs.BestEffort(log, "remove screenshots", func() error {
			return os.RemoveAll(cfg.ScreenshotDir)
		})
	}

	if cfg.PushgatewayURL != "" {
		_ = obs.BestEffort(log, "push metrics", func() error {
			return m.Push(ctx, cfg.PushgatewayURL, cfg.MetricsJob, runKey)
		})
	}

	summary := rec.Summary()
	summary.RunName = run.Name()
	if summary.RunName == "" {
		summary.RunName = "storefront-e2e " + runKey[:8]
	}
	summary.RunID = run.RunID()
	summary.Duration = time.Since(started).Round(time.Second)
	summary.ExitCode = status
	notifier := notify.New(cfg.Notify.ResendAPIKey, cfg.Notify.From, cfg.Notify.To)
	_ = obs.BestEffort(log, "send run summary", func() error {
		return notifier.Send(ctx, summary)
	})

	log.Info("run finished",
		"status", status,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration.String(),
	)
	return status, ctx.Err()
}

func newTestRailClient(cfg *config.Config) *testrail.Client {
	return testrail.New(testrail.Config{
		BaseURL:    cfg.TestRail.URL,
		User:       cfg.TestRail.User,
		Token:      cfg.TestRail.Token,
		RPS:        cfg.TestRail.RPS,
		Burst:      cfg.TestRail.Burst,
		MaxRetries: cfg.TestRail.MaxRetries,
		Timeout:    cfg.TestRail.Timeout,
		Logger:     obs.Pkg("testrail"),
	})
}

func stepOptions(cfg *config.Config) steps.Options {
	return steps.Options{
		BaseURL:        cfg.BaseURL,
		CartURL:        cfg.CartURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		DefaultKeyword: cfg.DefaultKeyword,
		Timeout:        cfg.DefaultTimeout,
	}
}

// openRunAttrs tells an operator whether rerunning later could help: a 5xx or
// rate limit is retryable, a bad section id or token is not.
func openRunAttrs(err error) []any {
	return []any{
		"error", err,
		"reason", errs.MessageOf(err),
		"code", errs.CodeOf(err),
		"retryable", errs.IsRetryable(err),
	}
}
