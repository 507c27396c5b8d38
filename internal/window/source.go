package window

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bryanchriswhite/nicotine/internal/config"
	"golang.org/x/sync/singleflight"
)

// Source turns a backend's raw enumeration into the ordered list of target
// windows: prefix match, exclusions, de-duplication, order file, ordinals.
type Source struct {
	backend Backend
	prefix  string
	exclude []*regexp.Regexp
	order   *OrderFile

	group singleflight.Group
}

// NewSource wraps a backend with the window selection rules from cfg
func NewSource(backend Backend, cfg config.WindowConfig, order *OrderFile) (*Source, error) {
	exclude := make([]*regexp.Regexp, 0, len(cfg.ExcludePatterns))
	for _, p := range cfg.ExcludePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		exclude = append(exclude, re)
	}
	return &Source{
		backend: backend,
		prefix:  cfg.TitlePrefix,
		exclude: exclude,
		order:   order,
	}, nil
}

// Enumerate returns the target windows. Concurrent callers share one
// backend round-trip; the returned slice must not be modified.
func (s *Source) Enumerate(ctx context.Context) ([]Window, error) {
	v, err, _ := s.group.Do("enumerate", func() (interface{}, error) {
		raw, err := s.backend.Enumerate(ctx)
		if err != nil {
			return nil, err
		}
		return s.Select(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Window), nil
}

// Select applies the filter and ordering rules to a raw enumeration
func (s *Source) Select(raw []Window) []Window {
	seen := make(map[uint64]bool, len(raw))
	matched := make([]Window, 0, len(raw))
	for _, w := range raw {
		if !s.matches(w.Title) || seen[w.Handle] {
			continue
		}
		seen[w.Handle] = true
		w.Title = strings.TrimPrefix(w.Title, s.prefix)
		matched = append(matched, w)
	}

	var titles []string
	if s.order != nil {
		titles = s.order.Titles()
	}
	ordered := applyOrder(matched, titles)
	for i := range ordered {
		ordered[i].Ordinal = i + 1
	}
	return ordered
}

func (s *Source) matches(title string) bool {
	if title == "" || !strings.HasPrefix(title, s.prefix) {
		return false
	}
	for _, re := range s.exclude {
		if re.MatchString(title) {
			return false
		}
	}
	return true
}

// applyOrder puts windows named in titles first, in file order; the rest
// keep their enumeration order.
func applyOrder(windows []Window, titles []string) []Window {
	if len(titles) == 0 {
		return windows
	}

	out := make([]Window, 0, len(windows))
	used := make([]bool, len(windows))
	for _, title := range titles {
		for i, w := range windows {
			if !used[i] && w.Title == title {
				out = append(out, w)
				used[i] = true
				break
			}
		}
	}
	for i, w := range windows {
		if !used[i] {
			out = append(out, w)
		}
	}
	return out
}
