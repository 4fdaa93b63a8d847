package testrail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/storefront-e2e/internal/errs"
)

// newTestServer routes on the exact endpoint in /index.php?/api/v2/<endpoint>.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/index.php" {
			http.NotFound(w, r)
			return
		}
		endpoint := strings.TrimPrefix(r.URL.RawQuery, "/api/v2/")
		if user, token, ok := r.BasicAuth(); !ok || user != "qa@example.com" || token != "api-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"Authentication failed: invalid or missing user/password or session cookie."}`)
			return
		}
		if h, ok := routes[endpoint]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Unknown method"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, retries int) *Client {
	return New(Config{
		BaseURL:      srv.URL + "/",
		User:         "qa@example.com",
		Token:        "api-key",
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_URL(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "https://qa.testrail.io/"})
	require.Equal(t, "https://qa.testrail.io/index.php?/api/v2/get_run/7", c.URL("get_run/7"))
	require.Equal(t, "https://qa.testrail.io/index.php?/api/v2/get_run/7", c.URL("/get_run/7"))
}

func TestClient_AddResultForCase(t *testing.T) {
	t.Parallel()
	var got ResultInput
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"add_result_for_case/12/345": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, Result{ID: 9001, TestID: 55, StatusID: got.StatusID})
		},
	})

	res, err := newTestClient(srv, 0).AddResultForCase(context.Background(), 12, 345, ResultInput{
		StatusID: StatusFailed,
		Comment:  "Test failed: timeout",
		Elapsed:  "3.2s",
	})
	require.NoError(t, err)
	require.Equal(t, 9001, res.ID)
	require.Equal(t, ResultInput{StatusID: 5, Comment: "Test failed: timeout", Elapsed: "3.2s"}, got)
}

func TestClient_ErrorsKeepAPIMessage(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"add_run/1": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"Field :suite_id is a required field."}`)
		},
	})
	c := newTestClient(srv, 0)

	_, err := c.AddRun(context.Background(), 1, RunInput{Name: "nightly"})
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	require.Contains(t, err.Error(), "Field :suite_id is a required field.")

	bad := New(Config{BaseURL: srv.URL, User: "qa@example.com", Token: "wrong"})
	err = bad.CloseRun(context.Background(), 1)
	require.Equal(t, errs.PermissionDenied, errs.CodeOf(err))
}

func TestClient_RetriesRateLimitedRequests(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"close_run/3": func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"error":"API rate limit exceeded"}`)
				return
			}
			writeJSON(w, RunInfo{ID: 3, IsCompleted: true})
		},
	})

	require.NoError(t, newTestClient(srv, 3).CloseRun(context.Background(), 3))
	require.EqualValues(t, 3, calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"close_run/3": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})

	err := newTestClient(srv, 1).CloseRun(context.Background(), 3)
	require.Equal(t, errs.Unavailable, errs.CodeOf(err))
	require.True(t, errs.IsRetryable(err))
	require.EqualValues(t, 2, calls.Load())
}

func TestClient_AddAttachmentToResult(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "C345_20260101_120000.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG fake"), 0o644))

	srv := newTestServer(t, map[string]http.HandlerFunc{
		"add_attachment_to_result/9001": func(w http.ResponseWriter, r *http.Request) {
			require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
			f, hdr, err := r.FormFile("attachment")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			require.Equal(t, "C345_20260101_120000.png", hdr.Filename)
			require.Equal(t, "\x89PNG fake", string(body))
			writeJSON(w, map[string]any{"attachment_id": 443})
		},
	})

	a, err := newTestClient(srv, 0).AddAttachmentToResult(context.Background(), 9001, path)
	require.NoError(t, err)
	require.EqualValues(t, 443, a.ID)
}

func TestClient_ListsFollowPagination(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"get_cases/1&suite_id=2&section_id=10&offset=2": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"_links": map[string]any{"next": nil},
				"cases":  []Case{{ID: 3, SectionID: 10}},
			})
		},
		"get_cases/1&suite_id=2&section_id=10": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{
				"_links": map[string]any{"next": "/api/v2/get_cases/1&suite_id=2&section_id=10&offset=2"},
				"cases":  []Case{{ID: 1, SectionID: 10}, {ID: 2, SectionID: 10}},
			})
		},
		"get_sections/1&suite_id=2": func(w http.ResponseWriter, r *http.Request) {
			// Pre-6.7 servers answer with a bare array.
			writeJSON(w, []Section{{ID: 10}, {ID: 11, ParentID: ptr(10)}})
		},
	})
	c := newTestClient(srv, 0)

	cases, err := c.GetCases(context.Background(), 1, 2, 10)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, caseIDs(cases))

	sections, err := c.GetSections(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	require.Equal(t, 10, *sections[1].ParentID)
}

func TestClient_PaginationStopsOnSelfLink(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"get_cases/1&suite_id=2&section_id=3": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, map[string]any{
				"_links": map[string]any{"next": "/api/v2/" + strings.TrimPrefix(r.URL.RawQuery, "/api/v2/")},
				"cases":  []Case{{ID: 1}},
			})
		},
	})
	cases, err := newTestClient(srv, 0).GetCases(context.Background(), 1, 2, 3)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.EqualValues(t, 1, calls.Load())
}

func ptr(v int) *int { return &v }

func caseIDs(cases []Case) []int {
	ids := make([]int, 0, len(cases))
	for _, c := range cases {
		ids = append(ids, c.ID)
	}
	return ids
}
