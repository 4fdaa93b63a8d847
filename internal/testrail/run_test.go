package testrail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/obs"
)

type fakeRunAPI struct {
	sections   []Section
	cases      map[int][]Case
	casesErr   map[int]error
	addRunErr  error
	closeErr   error
	gotRun     *RunInput
	closedRuns []int
}

func (f *fakeRunAPI) GetSections(context.Context, int, int) ([]Section, error) {
	return f.sections, nil
}

func (f *fakeRunAPI) GetCases(_ context.Context, _, _, sectionID int) ([]Case, error) {
	if err := f.casesErr[sectionID]; err != nil {
		return nil, err
	}
	return f.cases[sectionID], nil
}

func (f *fakeRunAPI) AddRun(_ context.Context, _ int, in RunInput) (RunInfo, error) {
	if f.addRunErr != nil {
		return RunInfo{}, f.addRunErr
	}
	f.gotRun = &in
	return RunInfo{ID: 77, Name: in.Name}, nil
}

func (f *fakeRunAPI) CloseRun(_ context.Context, runID int) error {
	f.closedRuns = append(f.closedRuns, runID)
	return f.closeErr
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

// Section tree: 10 -> {11 -> {13}, 12}; 20 is a sibling root.
func storefrontSections() []Section {
	return []Section{
		{ID: 10},
		{ID: 11, ParentID: ptr(10)},
		{ID: 12, ParentID: ptr(10)},
		{ID: 13, ParentID: ptr(11)},
		{ID: 20},
	}
}

func TestOpenRun_CollectsDedupedCasesFromSubsections(t *testing.T) {
	api := &fakeRunAPI{
		sections: storefrontSections(),
		cases: map[int][]Case{
			10: {{ID: 101}, {ID: 102}},
			11: {{ID: 102}, {ID: 111}},
			13: {{ID: 131}},
			20: {{ID: 999}},
		},
		casesErr: map[int]error{12: errs.New(errs.Unavailable, "boom")},
	}
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	run, err := OpenRun(context.Background(), api, Plan{
		ProjectID: 1, SuiteID: 2, SectionID: 10, MilestoneID: 5,
		NamePrefix: "Storefront regression", Now: fixedNow,
	})
	require.NoError(t, err)
	require.Equal(t, 77, run.RunID())
	require.False(t, run.Reused())

	require.Equal(t, []int{101, 102, 111, 131}, api.gotRun.CaseIDs)
	require.Equal(t, "Storefront regression 2026-03-14 09:26:53", api.gotRun.Name)
	require.False(t, api.gotRun.IncludeAll)
	require.Equal(t, 5, api.gotRun.MilestoneID)
	require.Equal(t, 2, api.gotRun.SuiteID)
	require.Equal(t, 1, strings.Count(buf.String(), `"level":"WARN"`), buf.String())

	require.NoError(t, run.Close(context.Background()))
	require.Equal(t, []int{77}, api.closedRuns)
}

func TestOpenRun_NoCases(t *testing.T) {
	t.Parallel()
	api := &fakeRunAPI{sections: storefrontSections(), cases: map[int][]Case{20: {{ID: 1}}}}

	run, err := OpenRun(context.Background(), api, Plan{SectionID: 10, NamePrefix: "x"})
	require.Nil(t, run)
	require.Equal(t, errs.FailedPrecondition, errs.CodeOf(err))
	require.Nil(t, api.gotRun)
}

func TestOpenRun_AddRunFailureKeepsCode(t *testing.T) {
	t.Parallel()
	api := &fakeRunAPI{
		sections:  storefrontSections(),
		cases:     map[int][]Case{10: {{ID: 1}}},
		addRunErr: errs.New(errs.PermissionDenied, "no access"),
	}
	_, err := OpenRun(context.Background(), api, Plan{SectionID: 10})
	require.Equal(t, errs.PermissionDenied, errs.CodeOf(err))
}

func TestOpenRun_ReusesExistingRun(t *testing.T) {
	t.Parallel()
	api := &fakeRunAPI{}

	run, err := OpenRun(context.Background(), api, Plan{ExistingRunID: 42})
	require.NoError(t, err)
	require.Equal(t, 42, run.RunID())
	require.True(t, run.Reused())
	require.Nil(t, api.gotRun)

	require.NoError(t, run.Close(context.Background()))
	require.Empty(t, api.closedRuns, "reused runs stay open")
}

func TestRun_CloseIsBestEffort(t *testing.T) {
	api := &fakeRunAPI{closeErr: errors.New("connection reset")}
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	run := &Run{id: 5, api: api, log: obs.Pkg("testrail")}
	require.Error(t, run.Close(context.Background()))
	require.Contains(t, buf.String(), "close test run failed")

	var nilRun *Run
	require.NoError(t, nilRun.Close(context.Background()))
	require.Zero(t, nilRun.RunID())
}

func TestSubsectionIDs(t *testing.T) {
	t.Parallel()
	require.Equal(t, []int{10, 11, 13, 12}, SubsectionIDs(10, storefrontSections()))
	require.Equal(t, []int{20}, SubsectionIDs(20, storefrontSections()))
	require.Equal(t, []int{99}, SubsectionIDs(99, storefrontSections()))
}

// Random forests: the result starts at root, has no duplicates, and is closed
// under "child of a collected section".
func testSubsectionIDsClosure(t *rapid.T) {
	n := rapid.IntRange(1, 40).Draw(t, "n")
	sections := make([]Section, n)
	for i := range sections {
		sections[i].ID = i + 1
		if i > 0 && rapid.Bool().Draw(t, "hasParent") {
			parent := rapid.IntRange(1, i).Draw(t, "parent")
			sections[i].ParentID = &parent
		}
	}
	root := rapid.IntRange(1, n).Draw(t, "root")

	got := SubsectionIDs(root, sections)
	if len(got) == 0 || got[0] != root {
		t.Fatalf("result must start with root %d: %v", root, got)
	}
	in := map[int]bool{}
	for _, id := range got {
		if in[id] {
			t.Fatalf("duplicate id %d in %v", id, got)
		}
		in[id] = true
	}
	for _, s := range sections {
		if s.ParentID == nil || s.ID == root {
			continue
		}
		if in[*s.ParentID] != in[s.ID] {
			t.Fatalf("section %d (parent %d) breaks closure: %v", s.ID, *s.ParentID, got)
		}
	}
}

func TestSubsectionIDsClosure(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSubsectionIDsClosure)
}
