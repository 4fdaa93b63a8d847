// Package runner wires the harness, steps and recorder into a godog suite and
// drives one complete test run.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cucumber/godog"

	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/obs"
	"github.com/kuitang/storefront-e2e/internal/recorder"
	"github.com/kuitang/storefront-e2e/internal/steps"
)

// Suite owns the per-run collaborators the scenario hooks use.
// Scenarios run one at a time.
type Suite struct {
	harness  *harness.Harness
	recorder *recorder.Recorder
	steps    *steps.Steps
	runKey   string
	log      *slog.Logger

	// setupErrs holds Before failures by pickle id until After reports them.
	setupErrs map[string]error
}

func NewSuite(h *harness.Harness, rec *recorder.Recorder, st *steps.Steps, runKey string) *Suite {
	return &Suite{
		harness:   h,
		recorder:  rec,
		steps:     st,
		runKey:    runKey,
		log:       obs.Pkg("runner"),
		setupErrs: make(map[string]error),
	}
}

// TestSuite returns a godog suite bound to s. Scenarios share one browser, so
// concurrency is forced to 1.
func (s *Suite) TestSuite(opts *godog.Options) godog.TestSuite {
	opts.Concurrency = 1
	return godog.TestSuite{
		Name:                "storefront-e2e",
		ScenarioInitializer: s.InitializeScenario,
		Options:             opts,
	}
}

func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(s.before)
	sc.StepContext().After(s.afterStep)
	sc.After(s.after)
	s.steps.Register(sc)
}

func (s *Suite) before(ctx context.Context, p *godog.Scenario) (context.Context, error) {
	info := scenarioInfo(p)
	corr := obs.Correlation{RunID: s.runKey, Feature: info.Feature, Scenario: info.Name}
	if id, ok := recorder.CaseID(info); ok {
		corr.CaseID = "C" + strconv.Itoa(id)
	}
	ctx = obs.WithCorrelation(ctx, corr)

	sc, err := s.harness.BeforeScenario(ctx, info)
	if err != nil {
		s.setupErrs[p.Id] = err
		if errors.Is(err, harness.ErrNoBrowser) {
			return ctx, godog.ErrSkip
		}
		return ctx, err
	}
	return harness.WithScenario(ctx, sc), nil
}

func (s *Suite) afterStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
	log := obs.From(ctx).With("pkg", "runner")
	if err != nil {
		log.Warn("step finished", "step", st.Text, "status", status.String(), "error", err)
	} else {
		log.Info("step finished", "step", st.Text, "status", status.String())
	}
	return ctx, nil
}

func (s *Suite) after(ctx context.Context, p *godog.Scenario, err error) (context.Context, error) {
	if setupErr, ok := s.setupErrs[p.Id]; ok {
		delete(s.setupErrs, p.Id)
		err = setupErr
	}
	var elapsed time.Duration
	if sc, scErr := harness.ScenarioFrom(ctx); scErr == nil {
		elapsed = sc.Elapsed()
		s.log.Debug("feature store after scenario", "scenario", p.Name, "keys", sc.Store().Keys())
	}
	s.recorder.Record(ctx, recorder.Outcome{
		Scenario: scenarioInfo(p),
		Err:      err,
		Elapsed:  elapsed,
	})
	return ctx, nil
}

func scenarioInfo(p *godog.Scenario) harness.ScenarioInfo {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}
	return harness.ScenarioInfo{
		ID:      p.Id,
		Name:    p.Name,
		Feature: p.Uri,
		Tags:    tags,
	}
}
