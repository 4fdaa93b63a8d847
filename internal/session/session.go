// Package session tracks which browser tab step code is driving.
//
// A BrowserSession is seeded with the feature page and keeps a stack of pages
// opened on top of it (a product link that opens a new tab, a payment popup).
// The active page is always the top of the stack and the stack never empties,
// so step code never sees a nil page.
package session

import (
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/storefront-e2e/internal/errs"
	"github.com/kuitang/storefront-e2e/internal/obs"
)

var (
	// ErrNilPage is returned by SwitchTo when given no page.
	ErrNilPage = errs.New(errs.InvalidArgument, "session: page is nil")
	// ErrPageClosed is returned by SwitchTo when the page was already closed.
	ErrPageClosed = errs.New(errs.FailedPrecondition, "session: page is closed")
	// ErrStackFloor is returned when an operation would pop the feature page.
	ErrStackFloor = errs.New(errs.FailedPrecondition, "session: only the feature page is left")
)

const blankURL = "about:blank"

// BrowserSession is the active-page tracker for one feature.
// It is not safe for concurrent use; scenarios run one at a time.
type BrowserSession struct {
	stack nonEmpty[playwright.Page]
	log   *slog.Logger
}

// New seeds a session with the feature page. A nil logger uses obs.Pkg("session").
func New(seed playwright.Page, log *slog.Logger) (*BrowserSession, error) {
	if seed == nil {
		return nil, ErrNilPage
	}
	if log == nil {
		log = obs.Pkg("session")
	}
	return &BrowserSession{
		stack: newNonEmpty(seed),
		log:   log,
	}, nil
}

// ActivePage returns the page step code should operate on.
func (s *BrowserSession) ActivePage() playwright.Page {
	return s.stack.top()
}

// Depth returns the number of pages on the stack, at least 1.
func (s *BrowserSession) Depth() int {
	return s.stack.len()
}

// SwitchTo makes page the active page. Nil and closed pages are refused and
// leave the stack unchanged. A page that has not navigated yet is accepted
// with a warning, since a freshly opened tab may still be loading.
func (s *BrowserSession) SwitchTo(page playwright.Page) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.New(errs.Internal, fmt.Sprintf("session: validating page: %v", r))
			s.log.Warn("switch_to refused", "error", err)
		}
	}()

	if page == nil {
		s.log.Warn("switch_to refused", "error", ErrNilPage)
		return ErrNilPage
	}
	if page.IsClosed() {
		s.log.Warn("switch_to refused", "error", ErrPageClosed)
		return ErrPageClosed
	}
	url := page.URL()
	if url == "" || url == blankURL {
		s.log.Warn("switching to a page that has not navigated yet", "url", url)
	}

	s.stack.push(page)
	s.log.Info("active page switched", "url", url, "depth", s.stack.len())
	return nil
}

// Restore pops the active page and returns focus to the one below it.
// It returns ErrStackFloor, without changes, when only the feature page is left.
func (s *BrowserSession) Restore() error {
	popped, ok := s.stack.pop()
	if !ok {
		s.log.Warn("restore refused: only the feature page is left", "url", pageURL(s.stack.top()))
		return ErrStackFloor
	}
	s.log.Info("active page restored",
		"left_url", pageURL(popped),
		"url", pageURL(s.stack.top()),
		"depth", s.stack.len(),
	)
	return nil
}

// CloseActive closes the active page and restores the previous one. The
// feature page itself is never closed here; that belongs to the harness.
func (s *BrowserSession) CloseActive() error {
	if s.stack.len() <= 1 {
		s.log.Warn("close_active refused: only the feature page is left")
		return ErrStackFloor
	}
	top := s.stack.top()
	if err := closePage(top); err != nil {
		s.log.Warn("closing active page failed", "url", pageURL(top), "error", err)
	}
	return s.Restore()
}

// InspectStack returns the URLs on the stack, bottom first.
func (s *BrowserSession) InspectStack() []string {
	pages := s.stack.snapshot()
	urls := make([]string, len(pages))
	for i, p := range pages {
		urls[i] = pageURL(p)
	}
	return urls
}

// ActiveOpenPage returns the active page if it is still open.
func (s *BrowserSession) ActiveOpenPage() (playwright.Page, bool) {
	page := s.stack.top()
	closed := true
	func() {
		defer func() { _ = recover() }()
		closed = page.IsClosed()
	}()
	if closed {
		return nil, false
	}
	return page, true
}

func pageURL(p playwright.Page) (url string) {
	defer func() {
		if recover() != nil {
			url = "<unavailable>"
		}
	}()
	if p == nil {
		return "<nil>"
	}
	if p.IsClosed() {
		return "<closed>"
	}
	return p.URL()
}

func closePage(p playwright.Page) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: closing page: %v", r)
		}
	}()
	if p.IsClosed() {
		return nil
	}
	return p.Close()
}
