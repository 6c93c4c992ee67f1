// Package news holds the post model of the site's news section and the
// server-side store that owns the post collection.
package news

import (
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Topic is the subject area a post belongs to.
type Topic string

const (
	TopicAstrology  Topic = "astrology"
	TopicNumerology Topic = "numerology"
	TopicAstronomy  Topic = "astronomy"
	TopicHoroscope  Topic = "horoscope"
)

// Topics lists every topic in display order.
var Topics = []Topic{TopicAstrology, TopicNumerology, TopicAstronomy, TopicHoroscope}

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	for _, v := range Topics {
		if t == v {
			return true
		}
	}
	return false
}

// Format controls how a post is laid out. It has no effect on storage.
type Format string

const (
	FormatFact      Format = "fact"
	FormatForecast  Format = "forecast"
	FormatSeries    Format = "series"
	FormatHoroscope Format = "horoscope"
)

// Formats lists every format in display order.
var Formats = []Format{FormatFact, FormatForecast, FormatSeries, FormatHoroscope}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}

// Gallery reports whether the format shows Images as a gallery.
func (f Format) Gallery() bool {
	return f == FormatSeries
}

// Post is a single news item. ID is the primary key; Slug is derived from
// the title at creation and only used for lookups by URL.
type Post struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Title           string   `json:"title"`
	Text            string   `json:"text"`
	Date            string   `json:"date"`
	Topic           Topic    `json:"topic"`
	Format          Format   `json:"format"`
	ImageURL        string   `json:"imageUrl,omitempty"`
	Images          []string `json:"images,omitempty"`
	VideoURL        string   `json:"videoUrl,omitempty"`
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
}

// SEOTitle returns MetaTitle, or Title when no override is set.
func (p Post) SEOTitle() string {
	if p.MetaTitle != "" {
		return p.MetaTitle
	}
	return p.Title
}

// NewID returns a fresh post id.
func NewID() string {
	return uuid.NewString()
}

// MakeSlug derives a URL slug from title and suffixes it with the first
// characters of id, so two posts with the same title get different slugs.
func MakeSlug(title, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	suffix = slug.Make(suffix)
	base := slug.Make(title)
	switch {
	case base == "":
		return suffix
	case suffix == "":
		return base
	}
	return base + "-" + suffix
}
