package news

import (
	"sort"
	"strings"
	"time"
)

// dateLayouts are the date forms the editor and seed data produce. Dates are
// display strings, so anything else sorts after the parseable ones.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04",
	"02.01.2006",
	"January 2, 2006",
}

// ParseDate parses a post date in any of the known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Upsert replaces the post with the same id in place, or appends p.
// The input slice is not modified.
func Upsert(posts []Post, p Post) []Post {
	out := make([]Post, 0, len(posts)+1)
	replaced := false
	for _, existing := range posts {
		if existing.ID == p.ID {
			out = append(out, p)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, p)
	}
	return out
}

// Remove returns posts without the one whose id matches.
func Remove(posts []Post, id string) []Post {
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// FindByID returns the post with id.
func FindByID(posts []Post, id string) (Post, bool) {
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

// FindBySlug returns the first post with slug in collection order.
func FindBySlug(posts []Post, slug string) (Post, bool) {
	for _, p := range posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return Post{}, false
}

// SortNewestFirst returns a copy of posts ordered by date, newest first.
// Posts with unparseable dates keep their relative order at the end.
func SortNewestFirst(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := ParseDate(out[i].Date)
		tj, okJ := ParseDate(out[j].Date)
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI:
			return true
		default:
			return false
		}
	})
	return out
}

// Filter returns the posts whose title or text contains query
// (case-insensitive) and, when topic is set, that belong to topic.
func Filter(posts []Post, query string, topic Topic) []Post {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []Post
	for _, p := range posts {
		if topic != "" && p.Topic != topic {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(p.Title), q) &&
			!strings.Contains(strings.ToLower(p.Text), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MergeSeed combines the bundled seed posts with the stored ones. Stored
// posts win when ids collide; seed posts come first.
func MergeSeed(seed, stored []Post) []Post {
	ids := make(map[string]struct{}, len(stored))
	for _, p := range stored {
		ids[p.ID] = struct{}{}
	}
	out := make([]Post, 0, len(seed)+len(stored))
	for _, p := range seed {
		if _, ok := ids[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return append(out, stored...)
}
