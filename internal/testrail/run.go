package testrail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/obs"
)

// RunAPI is the part of Client the run lifecycle needs.
type RunAPI interface {
	GetSections(ctx context.Context, projectID, suiteID int) ([]Section, error)
	GetCases(ctx context.Context, projectID, suiteID, sectionID int) ([]Case, error)
	AddRun(ctx context.Context, projectID int, in RunInput) (RunInfo, error)
	CloseRun(ctx context.Context, runID int) error
}

// Plan describes the run to open.
type Plan struct {
	ProjectID     int
	SuiteID       int
	SectionID     int
	MilestoneID   int
	ExistingRunID int
	NamePrefix    string
	Now           func() time.Time
}

// Run is an open test run. A nil *Run reports id 0, which makes the recorder
// skip reporting.
type Run struct {
	id     int
	name   string
	reused bool
	api    RunAPI
	log    *slog.Logger
}

// OpenRun reuses plan.ExistingRunID when set. Otherwise it collects the cases
// under plan.SectionID and its subsections and creates a run containing
// exactly those cases.
func OpenRun(ctx context.Context, api RunAPI, plan Plan) (*Run, error) {
	log := obs.Pkg("testrail")
	if plan.ExistingRunID > 0 {
		log.Info("reusing test run", "run_id", plan.ExistingRunID)
		return &Run{id: plan.ExistingRunID, reused: true, api: api, log: log}, nil
	}

	sections, err := api.GetSections(ctx, plan.ProjectID, plan.SuiteID)
	if err != nil {
		return nil, errs.Wrap(errs.CodeOf(err), "testrail: list sections", err)
	}
	sectionIDs := SubsectionIDs(plan.SectionID, sections)

	var caseIDs []int
	seen := map[int]bool{}
	for _, sectionID := range sectionIDs {
		cases, err := api.GetCases(ctx, plan.ProjectID, plan.SuiteID, sectionID)
		if err != nil {
			log.Warn("listing cases failed; skipping section", "section_id", sectionID, "error", err)
			continue
		}
		for _, c := range cases {
			if !seen[c.ID] {
				seen[c.ID] = true
				caseIDs = append(caseIDs, c.ID)
			}
		}
	}
	if len(caseIDs) == 0 {
		return nil, errs.New(errs.FailedPrecondition,
			fmt.Sprintf("testrail: no cases under section %d (%d sections searched)", plan.SectionID, len(sectionIDs)))
	}

	now := time.Now
	if plan.Now != nil {
		now = plan.Now
	}
	name := fmt.Sprintf("%s %s", plan.NamePrefix, now().Format("2006-01-02 15:04:05"))
	info, err := api.AddRun(ctx, plan.ProjectID, RunInput{
		SuiteID:     plan.SuiteID,
		Name:        name,
		MilestoneID: max(plan.MilestoneID, 0),
		IncludeAll:  false,
		CaseIDs:     caseIDs,
	})
	if err != nil {
		return nil, errs.Wrap(errs.CodeOf(err), "testrail: create run", err)
	}
	log.Info("test run created", "run_id", info.ID, "name", name, "cases", len(caseIDs), "url", info.URL)
	return &Run{id: info.ID, name: name, api: api, log: log}, nil
}

// RunID returns the run id, or 0 for a nil run.
func (r *Run) RunID() int {
	if r == nil {
		return 0
	}
	return r.id
}

// Name returns the run name, empty for reused runs.
func (r *Run) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

func (r *Run) Reused() bool {
	return r != nil && r.reused
}

// Close closes a run created by OpenRun. Reused runs are left open. Failures
// are logged and returned but never fatal to the caller.
func (r *Run) Close(ctx context.Context) error {
	if r == nil || r.reused || r.id == 0 {
		return nil
	}
	return obs.BestEffort(r.log, "close test run", func() error {
		if err := r.api.CloseRun(ctx, r.id); err != nil {
			return err
		}
		r.log.Info("test run closed", "run_id", r.id)
		return nil
	})
}
