// Package holidays loads the holiday list a work calendar excludes. Lists come
// from a YAML file, an object store, postgres or a static default, optionally
// behind a Redis cache.
package holidays

import (
	"context"
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/deskline/helpdesk-sla/internal/sla"
)

// Holiday is a named calendar date.
type Holiday struct {
	Date sla.Date
	Name string
}

// Source loads a holiday list.
type Source interface {
	Load(ctx context.Context) ([]Holiday, error)
}

// Static is a fixed in-memory list.
type Static []Holiday

func (s Static) Load(context.Context) ([]Holiday, error) { return Normalize(s), nil }

// FromDates wraps bare dates.
func FromDates(dates []sla.Date) Static {
	out := make(Static, 0, len(dates))
	for _, d := range dates {
		out = append(out, Holiday{Date: d})
	}
	return out
}

// Dates strips names.
func Dates(hs []Holiday) []sla.Date {
	out := make([]sla.Date, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Date)
	}
	return out
}

// Chain tries each source in order and returns the first non-empty list.
// Errors are skipped unless every source fails.
type Chain []Source

func (c Chain) Load(ctx context.Context) ([]Holiday, error) {
	var firstErr error
	for _, s := range c {
		hs, err := s.Load(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(hs) > 0 {
			return hs, nil
		}
	}
	return nil, firstErr
}

var namePolicy = bluemonday.StrictPolicy()

// Normalize sorts by date, drops duplicate dates (first name wins) and strips
// markup from names.
func Normalize(hs []Holiday) []Holiday {
	seen := make(map[sla.Date]bool, len(hs))
	out := make([]Holiday, 0, len(hs))
	for _, h := range hs {
		if seen[h.Date] {
			continue
		}
		seen[h.Date] = true
		h.Name = strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(h.Name)))
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
