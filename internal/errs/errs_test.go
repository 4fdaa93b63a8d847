package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

var allCodes = []Code{
	InvalidArgument,
	NotFound,
	FailedPrecondition,
	PermissionDenied,
	Unavailable,
	Internal,
}

func testCodeOf_RoundtripForTypedErrors(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")

	err := New(code, message)
	if got := CodeOf(err); got != code {
		t.Fatalf("CodeOf(New) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(err); got != message {
		t.Fatalf("MessageOf(New) mismatch: got=%q want=%q", got, message)
	}
}

func TestCodeOf_RoundtripForTypedErrors(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeOf_RoundtripForTypedErrors)
}

func testWrap_KeepsCauseReachable(t *rapid.T) {
	code := rapid.SampledFrom(allCodes).Draw(t, "code")
	message := rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "message")
	cause := errors.New(rapid.StringMatching(`[a-zA-Z0-9 _:\-]{1,80}`).Draw(t, "cause"))

	err := Wrap(code, message, cause)
	wrapped := fmt.Errorf("outer: %w", err)

	if got := CodeOf(wrapped); got != code {
		t.Fatalf("CodeOf(wrapped) mismatch: got=%q want=%q", got, code)
	}
	if got := MessageOf(wrapped); got != message {
		t.Fatalf("MessageOf(wrapped) mismatch: got=%q want=%q", got, message)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("cause not reachable through errors.Is")
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Fatalf("Error() should include cause: %q", err.Error())
	}
}

func TestWrap_KeepsCauseReachable(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testWrap_KeepsCauseReachable)
}

func testUntypedAndNilFallbacks(t *rapid.T) {
	raw := rapid.StringMatching(`[a-zA-Z0-9 _:\-./]{1,80}`).Draw(t, "raw")
	untyped := errors.New(raw)

	if got := CodeOf(untyped); got != Internal {
		t.Fatalf("CodeOf(untyped) mismatch: got=%q want=%q", got, Internal)
	}
	if got := MessageOf(untyped); got != "internal error" {
		t.Fatalf("MessageOf(untyped) mismatch: got=%q want=%q", got, "internal error")
	}
	if got := CodeOf(nil); got != Internal {
		t.Fatalf("CodeOf(nil) mismatch: got=%q want=%q", got, Internal)
	}
	if IsRetryable(nil) || IsRetryable(untyped) {
		t.Fatal("nil and untyped errors must not be retryable")
	}
}

func TestUntypedAndNilFallbacks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testUntypedAndNilFallbacks)
}

func testCodeForHTTPStatus_Mapping(t *rapid.T) {
	known := map[int]Code{
		http.StatusBadRequest:          InvalidArgument,
		http.StatusUnprocessableEntity: InvalidArgument,
		http.StatusUnauthorized:        PermissionDenied,
		http.StatusForbidden:           PermissionDenied,
		http.StatusNotFound:            NotFound,
		http.StatusConflict:            FailedPrecondition,
		http.StatusTooManyRequests:     Unavailable,
		http.StatusBadGateway:          Unavailable,
		http.StatusServiceUnavailable:  Unavailable,
		http.StatusGatewayTimeout:      Unavailable,
	}

	status := rapid.IntRange(400, 599).Draw(t, "status")
	want := Internal
	if mapped, ok := known[status]; ok {
		want = mapped
	}
	if got := CodeForHTTPStatus(status); got != want {
		t.Fatalf("CodeForHTTPStatus mismatch: status=%d got=%q want=%q", status, got, want)
	}
}

func TestCodeForHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCodeForHTTPStatus_Mapping)
}
