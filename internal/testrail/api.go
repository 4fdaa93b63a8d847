package testrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kuitang/storefront-e2e/internal/errs"
)

// Result status ids, as configured in a stock TestRail install.
const (
	StatusPassed   = 1
	StatusBlocked  = 2
	StatusUntested = 3
	StatusRetest   = 4
	StatusFailed   = 5
)

// maxPages bounds pagination in case a server keeps returning the same link.
const maxPages = 1000

type Section struct {
	ID       int    `json:"id"`
	SuiteID  int    `json:"suite_id"`
	Name     string `json:"name"`
	ParentID *int   `json:"parent_id"`
	Depth    int    `json:"depth"`
}

type Case struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	SectionID int    `json:"section_id"`
}

// RunInput is the add_run payload.
type RunInput struct {
	SuiteID     int    `json:"suite_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MilestoneID int    `json:"milestone_id,omitempty"`
	IncludeAll  bool   `json:"include_all"`
	CaseIDs     []int  `json:"case_ids"`
}

type RunInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	IsCompleted bool   `json:"is_completed"`
}

// ResultInput is the add_result_for_case payload. Elapsed uses TestRail's
// timespan format ("12.3s").
type ResultInput struct {
	StatusID int    `json:"status_id"`
	Comment  string `json:"comment,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
}

type Result struct {
	ID       int `json:"id"`
	TestID   int `json:"test_id"`
	StatusID int `json:"status_id"`
}

// Attachment is the add_attachment_to_result response. Hosted instances return
// a string id, older servers a number.
type Attachment struct {
	ID any `json:"attachment_id"`
}

// GetSections returns every section of a suite, following pagination.
func (c *Client) GetSections(ctx context.Context, projectID, suiteID int) ([]Section, error) {
	return getList[Section](ctx, c, fmt.Sprintf("get_sections/%d&suite_id=%d", projectID, suiteID), "sections")
}

// GetCases returns the cases directly under one section.
func (c *Client) GetCases(ctx context.Context, projectID, suiteID, sectionID int) ([]Case, error) {
	return getList[Case](ctx, c, fmt.Sprintf("get_cases/%d&suite_id=%d&section_id=%d", projectID, suiteID, sectionID), "cases")
}

func (c *Client) AddRun(ctx context.Context, projectID int, in RunInput) (RunInfo, error) {
	if in.CaseIDs == nil {
		in.CaseIDs = []int{}
	}
	var run RunInfo
	err := c.Post(ctx, fmt.Sprintf("add_run/%d", projectID), in, &run)
	return run, err
}

func (c *Client) AddResultForCase(ctx context.Context, runID, caseID int, in ResultInput) (Result, error) {
	var res Result
	err := c.Post(ctx, fmt.Sprintf("add_result_for_case/%d/%d", runID, caseID), in, &res)
	return res, err
}

// AddAttachmentToResult uploads the file at path to an existing result.
func (c *Client) AddAttachmentToResult(ctx context.Context, resultID int, path string) (Attachment, error) {
	var a Attachment
	err := c.PostFile(ctx, fmt.Sprintf("add_attachment_to_result/%d", resultID), "attachment", path, &a)
	return a, err
}

func (c *Client) CloseRun(ctx context.Context, runID int) error {
	return c.Post(ctx, fmt.Sprintf("close_run/%d", runID), nil, nil)
}

// getList fetches a list endpoint. Servers before 6.7 answer with a bare JSON
// array; newer ones wrap the items under key with a _links.next cursor.
func getList[T any](ctx context.Context, c *Client, endpoint, key string) ([]T, error) {
	var all []T
	next := endpoint
	for page := 0; next != ""; page++ {
		if page == maxPages {
			return nil, errs.New(errs.Internal, fmt.Sprintf("testrail: %s: pagination did not terminate", endpoint))
		}
		var raw json.RawMessage
		if err := c.Get(ctx, next, &raw); err != nil {
			return nil, err
		}
		items, more, err := decodePage[T](raw, key)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, fmt.Sprintf("testrail: decode %s", next), err)
		}
		all = append(all, items...)
		if more == next {
			break
		}
		next = more
	}
	return all, nil
}

func decodePage[T any](raw json.RawMessage, key string) ([]T, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, "", nil
	}
	if trimmed[0] == '[' {
		var items []T
		err := json.Unmarshal(trimmed, &items)
		return items, "", err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, "", err
	}
	var items []T
	if body, ok := envelope[key]; ok {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, "", err
		}
	}
	var links struct {
		Next *string `json:"next"`
	}
	if body, ok := envelope["_links"]; ok {
		if err := json.Unmarshal(body, &links); err != nil {
			return nil, "", err
		}
	}
	if links.Next == nil {
		return items, "", nil
	}
	// next is "/api/v2/get_cases/1&offset=250..."; requests take the part after v2/.
	return items, strings.TrimPrefix(*links.Next, "/api/v2/"), nil
}

// SubsectionIDs returns root followed by every section below it, depth first
// in input order. Cycles in malformed data are ignored.
func SubsectionIDs(root int, sections []Section) []int {
	children := make(map[int][]int)
	for _, s := range sections {
		if s.ParentID != nil {
			children[*s.ParentID] = append(children[*s.ParentID], s.ID)
		}
	}
	seen := map[int]bool{}
	var out []int
	var walk func(id int)
	walk = func(id int) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, child := range children[id] {
			walk(child)
		}
	}
	walk(root)
	return out
}
