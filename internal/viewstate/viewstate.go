package viewstate

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"coinwatch/internal/notify"
)

type Page string

const (
	PageHome    Page = "home"
	PagePrices  Page = "prices"
	PageNews    Page = "news"
	PageContact Page = "contact"
)

var ErrInvalidPage = errors.New("invalid page")

var pages = []Page{PageHome, PagePrices, PageNews, PageContact}

// Pages lists the recognized pages in navigation order.
func Pages() []Page {
	out := make([]Page, len(pages))
	copy(out, pages)
	return out
}

// ParsePage accepts only the exact page names; case and whitespace variants
// are rejected.
func ParsePage(s string) (Page, error) {
	p := Page(s)
	for _, known := range pages {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPage, s)
}

// State is the UI state that is not price related.
type State struct {
	ActivePage Page `json:"active_page"`
	DarkMode   bool `json:"dark_mode"`
}

// Store owns State. Only NavigateTo and ToggleTheme change it, and each
// change is published to the hub with the resulting State.
type Store struct {
	hub    *notify.Hub
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(hub *notify.Hub, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{hub: hub, logger: logger, state: State{ActivePage: PageHome}}
}

// NavigateTo switches the active page. An unknown page is a caller bug: it is
// logged, returned, and the state stays as it was.
func (s *Store) NavigateTo(page string) error {
	p, err := ParsePage(page)
	if err != nil {
		s.logger.Error("rejected navigation", "page", page, "err", err)
		return err
	}

	s.mu.Lock()
	s.state.ActivePage = p
	st := s.state
	s.mu.Unlock()

	s.publish(st)
	return nil
}

// ToggleTheme flips dark mode and returns the new state.
func (s *Store) ToggleTheme() State {
	s.mu.Lock()
	s.state.DarkMode = !s.state.DarkMode
	st := s.state
	s.mu.Unlock()

	s.publish(st)
	return st
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) publish(st State) {
	if s.hub != nil {
		s.hub.Publish(notify.TopicView, st)
	}
}
