// Package prefs holds the user's UI preferences. There is one Store per
// process; consumers get it injected instead of reaching for a global.
package prefs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type Preferences struct {
	Theme string `yaml:"theme" json:"theme"`
}

func Defaults() Preferences {
	return Preferences{Theme: ThemeLight}
}

func (p Preferences) validate() error {
	switch p.Theme {
	case ThemeLight, ThemeDark:
		return nil
	}
	return fmt.Errorf("unknown theme %q (want light|dark)", p.Theme)
}

type Store struct {
	path string

	mu  sync.RWMutex
	cur Preferences
}

// Load reads the persisted preferences, falling back to Defaults when the
// file is missing or unreadable.
func Load(path string) *Store {
	s := &Store{path: path, cur: Defaults()}

	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[prefs] read %s: %v (using defaults)", path, err)
		}
		return s
	}
	var p Preferences
	if err := yaml.Unmarshal(b, &p); err != nil {
		log.Printf("[prefs] parse %s: %v (using defaults)", path, err)
		return s
	}
	p.Theme = strings.ToLower(strings.TrimSpace(p.Theme))
	if p.validate() == nil {
		s.cur = p
	}
	return s
}

func (s *Store) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies fn to a copy of the current preferences and persists the
// result before making it visible.
func (s *Store) Update(fn func(*Preferences)) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	fn(&next)
	next.Theme = strings.ToLower(strings.TrimSpace(next.Theme))
	if err := next.validate(); err != nil {
		return s.cur, err
	}
	if err := s.persist(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

func (s *Store) persist(p Preferences) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	// Engine and CLI may both write.
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock prefs: %w", err)
	}
	defer lock.Unlock()

	b, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
