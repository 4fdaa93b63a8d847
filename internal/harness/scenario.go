package harness

import (
	"context"
	"sort"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/session"
)

// ErrNoScenario is returned by ScenarioFrom outside a running scenario.
var ErrNoScenario = errs.New(errs.FailedPrecondition, "harness: no scenario in context")

// Scenario is the value every step function receives through its context.
// Pages are reached only through Session, which always reflects the
// harness's current feature session.
type Scenario struct {
	ScenarioInfo
	Started time.Time

	harness *Harness
}

// Session returns the feature's BrowserSession, or nil if the feature
// context could not be opened.
func (s *Scenario) Session() *session.BrowserSession {
	return s.harness.ActiveSession()
}

// Page returns the active page, or nil without a session.
func (s *Scenario) Page() playwright.Page {
	sess := s.Session()
	if sess == nil {
		return nil
	}
	return sess.ActivePage()
}

// Store returns the feature-scoped key/value store. It is replaced when the
// feature changes.
func (s *Scenario) Store() *Store {
	if s.harness.store == nil {
		s.harness.store = NewStore()
	}
	return s.harness.store
}

// Elapsed returns the time since the scenario started.
func (s *Scenario) Elapsed() time.Duration {
	return time.Since(s.Started)
}

type scenarioContextKey struct{}

// WithScenario stores sc in ctx for step functions.
func WithScenario(ctx context.Context, sc *Scenario) context.Context {
	return context.WithValue(ctx, scenarioContextKey{}, sc)
}

// ScenarioFrom returns the running scenario, or ErrNoScenario.
func ScenarioFrom(ctx context.Context) (*Scenario, error) {
	sc, ok := ctx.Value(scenarioContextKey{}).(*Scenario)
	if !ok || sc == nil {
		return nil, ErrNoScenario
	}
	return sc, nil
}

// Store carries data between steps of a feature, e.g. the product picked in
// one scenario and checked in the next. Access is sequential.
type Store struct {
	values map[string]any
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

func (s *Store) Set(key string, value any) {
	s.values[key] = value
}

func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Delete(key string) {
	delete(s.values, key)
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value under key if it has type T.
func Lookup[T any](s *Store, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ScenarioForTests returns a Scenario bound to h without opening a feature
// context. Step tests use it to drive code against a harness with no browser.
func (h *Harness) ScenarioForTests(info ScenarioInfo) *Scenario {
	return h.newScenario(info)
}
