package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/storefront-e2e/internal/obs"
)

func sampleSummary() Summary {
	return Summary{
		RunName:  "Storefront regression 2026-03-14 09:26:53",
		RunID:    77,
		Passed:   11,
		Failed:   1,
		Skipped:  2,
		Duration: 95 * time.Second,
		Failures: []Failure{{
			CaseID:        345,
			Scenario:      "Add a product to the cart",
			Error:         `timeout waiting for "#cart-count"`,
			ScreenshotURL: "https://artifacts.example.com/e2e/run/C345.png",
		}},
	}
}

func TestSummary_Subject(t *testing.T) {
	t.Parallel()
	s := sampleSummary()
	if got := s.Subject(); !strings.HasPrefix(got, "[FAILED] Storefront regression") || !strings.Contains(got, "11 passed, 1 failed, 2 skipped") {
		t.Fatalf("unexpected subject %q", got)
	}
	s.Failed, s.Failures = 0, nil
	if got := s.Subject(); !strings.HasPrefix(got, "[PASSED]") {
		t.Fatalf("unexpected subject %q", got)
	}
	if (Summary{ExitCode: 1}).Subject()[:8] != "[FAILED]" {
		t.Fatal("non-zero exit must mark the run failed")
	}
}

func TestRenderSummaryHTML(t *testing.T) {
	t.Parallel()
	html, err := renderSummaryHTML(sampleSummary())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"C345", "Add a product to the cart", "https://artifacts.example.com/e2e/run/C345.png", "of 14 in 1m35s", "Test run #77"} {
		if !strings.Contains(html, want) {
			t.Fatalf("summary html missing %q", want)
		}
	}
	if strings.Contains(html, `"#cart-count"`) {
		t.Fatal("error text must be escaped")
	}
}

// Scenario names and errors come from test output; markup in them must never
// reach the email unescaped.
func testRenderSummaryHTML_EscapesFailures(t *rapid.T) {
	name := rapid.StringMatching(`[A-Za-z ]{0,12}<script>[a-z]{1,8}</script>`).Draw(t, "name")
	html, err := renderSummaryHTML(Summary{Failed: 1, Failures: []Failure{{Scenario: name, Error: name}}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("unescaped markup in %q", html)
	}
}

func TestRenderSummaryHTML_EscapesFailures(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRenderSummaryHTML_EscapesFailures)
}

func TestNew_FallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutputForTests(&buf)
	defer restore()

	n := New("", "qa@example.com", []string{"team@example.com"})
	if _, ok := n.(*LogNotifier); !ok {
		t.Fatalf("expected LogNotifier without an API key, got %T", n)
	}
	if _, ok := New("re_123", "qa@example.com", nil).(*LogNotifier); !ok {
		t.Fatal("expected LogNotifier without recipients")
	}
	if _, ok := New("re_123", "qa@example.com", []string{"team@example.com"}).(*ResendNotifier); !ok {
		t.Fatal("expected ResendNotifier")
	}

	if err := n.Send(context.Background(), sampleSummary()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"run summary"`) || !strings.Contains(out, `"case_id":345`) {
		t.Fatalf("unexpected log output:\n%s", out)
	}
}

func TestMockNotifier(t *testing.T) {
	t.Parallel()
	m := &MockNotifier{}
	if m.Last().RunID != 0 {
		t.Fatal("empty mock must return zero summary")
	}
	_ = m.Send(context.Background(), sampleSummary())
	if m.Count() != 1 || m.Last().RunID != 77 {
		t.Fatalf("unexpected captured summaries: %+v", m.Summaries)
	}
}
