package recorder

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/cucumber/godog"

	"github.com/kuitang/storefront-e2e/internal/harness"
	"github.com/kuitang/storefront-e2e/internal/testrail"
)

var (
	// @C345, or @C345-2 for one row of an outline that shares the case.
	caseTagPattern = regexp.MustCompile(`^@?C(\d+)(?:-\d+)?$`)
	// "Add to cart [C345]", as written in outline names and example rows.
	caseNamePattern = regexp.MustCompile(`\[C(\d+)\]`)
)

// CaseID returns the test case a scenario reports to: the first case tag,
// else a [C<id>] token in the name.
func CaseID(info harness.ScenarioInfo) (int, bool) {
	for _, tag := range info.Tags {
		if m := caseTagPattern.FindStringSubmatch(tag); m != nil {
			if id, ok := parseID(m[1]); ok {
				return id, true
			}
		}
	}
	if m := caseNamePattern.FindStringSubmatch(info.Name); m != nil {
		return parseID(m[1])
	}
	return 0, false
}

func parseID(digits string) (int, bool) {
	id, err := strconv.Atoi(digits)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// StatusFor maps a scenario error to a result status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return testrail.StatusPassed
	case isSkip(err):
		return testrail.StatusBlocked
	default:
		return testrail.StatusFailed
	}
}

func isSkip(err error) bool {
	return errors.Is(err, godog.ErrSkip) ||
		errors.Is(err, godog.ErrPending) ||
		errors.Is(err, godog.ErrUndefined) ||
		errors.Is(err, harness.ErrNoBrowser)
}

// StatusName is the label used in logs and metrics.
func StatusName(status int) string {
	switch status {
	case testrail.StatusPassed:
		return "passed"
	case testrail.StatusBlocked:
		return "skipped"
	default:
		return "failed"
	}
}
