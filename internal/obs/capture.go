package obs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ScenarioLogs is a slog.Handler that forwards every record to the wrapped
// handler and additionally buffers INFO+ records under the scenario that is
// currently running. The recorder drains the buffer into the result comment.
type ScenarioLogs struct {
	next   slog.Handler
	attrs  []slog.Attr
	groups []string
	state  *captureState
}

type captureState struct {
	mu      sync.Mutex
	current string
	buffers map[string][]string
	order   []string
}

// NewScenarioLogs wraps next with a per-scenario capture.
func NewScenarioLogs(next slog.Handler) *ScenarioLogs {
	return &ScenarioLogs{
		next: next,
		state: &captureState{
			buffers: make(map[string][]string),
		},
	}
}

func (h *ScenarioLogs) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.next.Enabled(ctx, level)
}

func (h *ScenarioLogs) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelInfo {
		h.state.append(h.format(r))
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ScenarioLogs) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		prefixed = append(prefixed, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &ScenarioLogs{
		next:   h.next.WithAttrs(attrs),
		attrs:  prefixed,
		groups: h.groups,
		state:  h.state,
	}
}

func (h *ScenarioLogs) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &ScenarioLogs{
		next:   h.next.WithGroup(name),
		attrs:  h.attrs,
		groups: groups,
		state:  h.state,
	}
}

func (h *ScenarioLogs) qualify(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	return strings.Join(h.groups, ".") + "." + key
}

// format renders "2006-01-02 15:04:05 [INFO ] pkg: message key=value".
func (h *ScenarioLogs) format(r slog.Record) string {
	name := "harness"
	var kv []string
	for _, a := range h.attrs {
		if a.Key == "pkg" {
			name = a.Value.String()
			continue
		}
		kv = append(kv, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		kv = append(kv, fmt.Sprintf("%s=%v", h.qualify(a.Key), a.Value))
		return true
	})

	line := fmt.Sprintf("%s [%-5s] %s: %s", r.Time.Format("2006-01-02 15:04:05"), r.Level.String(), name, r.Message)
	if len(kv) > 0 {
		line += " " + strings.Join(kv, " ")
	}
	return line
}

// Begin starts buffering for scenarioID, discarding anything previously
// recorded under that key.
func (h *ScenarioLogs) Begin(scenarioID string) {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = scenarioID
	if _, ok := s.buffers[scenarioID]; !ok {
		s.order = append(s.order, scenarioID)
	}
	s.buffers[scenarioID] = nil
}

// Logs returns the buffered lines for scenarioID without draining them.
func (h *ScenarioLogs) Logs(scenarioID string) string {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.match(scenarioID)
	if !ok {
		return ""
	}
	return strings.Join(s.buffers[key], "\n")
}

// Drain returns and removes the buffered lines for scenarioID. An exact key
// wins; otherwise the first recorded key that contains, or is contained in,
// scenarioID is used.
func (h *ScenarioLogs) Drain(scenarioID string) string {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.match(scenarioID)
	if !ok {
		return ""
	}
	lines := s.buffers[key]
	s.remove(key)
	return strings.Join(lines, "\n")
}

// Clear drops every buffer and stops capturing until the next Begin.
func (h *ScenarioLogs) Clear() {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.buffers = make(map[string][]string)
	s.order = nil
}

func (s *captureState) append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return
	}
	s.buffers[s.current] = append(s.buffers[s.current], line)
}

func (s *captureState) match(id string) (string, bool) {
	if _, ok := s.buffers[id]; ok {
		return id, true
	}
	if id == "" {
		return "", false
	}
	for _, key := range s.order {
		if key == "" {
			continue
		}
		if strings.Contains(key, id) || strings.Contains(id, key) {
			return key, true
		}
	}
	return "", false
}

func (s *captureState) remove(key string) {
	delete(s.buffers, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == key {
		s.current = ""
	}
}
