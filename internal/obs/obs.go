// Package obs owns the harness logger: JSON records on stderr plus an in-memory
// per-scenario capture that feeds result comments.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

type correlationContextKey struct{}

// Correlation carries the identifiers attached to every scenario log line.
type Correlation struct {
	RunID    string
	Feature  string
	Scenario string
	CaseID   string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
	capture  *ScenarioLogs
)

// Init configures the global structured logger.
func Init() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		return
	}
	logger, capture = newLogger(os.Stderr)
	slog.SetDefault(logger)
}

// SetOutputForTests overrides the global logger output for tests.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prevLogger, prevCapture := logger, capture
	logger, capture = newLogger(w)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if prevLogger != nil {
			logger, capture = prevLogger, prevCapture
		} else {
			logger, capture = newLogger(os.Stderr)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) (*slog.Logger, *ScenarioLogs) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
	logs := NewScenarioLogs(handler)
	return slog.New(logs), logs
}

func globalLogger() (*slog.Logger, *ScenarioLogs) {
	loggerMu.RLock()
	l, c := logger, capture
	loggerMu.RUnlock()
	if l != nil {
		return l, c
	}
	Init()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger, capture
}

// Capture returns the scenario log capture behind the global logger.
func Capture() *ScenarioLogs {
	_, c := globalLogger()
	return c
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	l, _ := globalLogger()
	return l.With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l, _ := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// WithCorrelation stores correlation fields in context, keeping existing
// values for fields left empty.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if v := strings.TrimSpace(corr.RunID); v != "" {
		existing.RunID = v
	}
	if v := strings.TrimSpace(corr.Feature); v != "" {
		existing.Feature = v
	}
	if v := strings.TrimSpace(corr.Scenario); v != "" {
		existing.Scenario = v
	}
	if v := strings.TrimSpace(corr.CaseID); v != "" {
		existing.CaseID = v
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 8)
	if corr.RunID != "" {
		attrs = append(attrs, "run_id", corr.RunID)
	}
	if corr.Feature != "" {
		attrs = append(attrs, "feature", corr.Feature)
	}
	if corr.Scenario != "" {
		attrs = append(attrs, "scenario", corr.Scenario)
	}
	if corr.CaseID != "" {
		attrs = append(attrs, "case_id", corr.CaseID)
	}
	return attrs
}
