package astrosite

import (
	"encoding/xml"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/astrosite/markdown"
	"github.com/eringen/astrosite/news"
)

const (
	feedSize      = 20
	summaryLength = 300
)

type feed struct {
	XMLName xml.Name    `xml:"rss"`
	Version string      `xml:"version,attr"`
	Channel feedChannel `xml:"channel"`
}

type feedChannel struct {
	Title         string     `xml:"title"`
	Link          string     `xml:"link"`
	Description   string     `xml:"description"`
	LastBuildDate string     `xml:"lastBuildDate,omitempty"`
	Items         []feedItem `xml:"item"`
}

type feedItem struct {
	Title       string         `xml:"title"`
	Link        string         `xml:"link"`
	Description string         `xml:"description"`
	Category    string         `xml:"category,omitempty"`
	PubDate     string         `xml:"pubDate,omitempty"`
	GUID        feedGUID       `xml:"guid"`
	Enclosure   *feedEnclosure `xml:"enclosure"`
}

// feedGUID identifies an item by post id, which survives title edits.
type feedGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type feedEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length int    `xml:"length,attr"`
}

func (a *App) handleFeed(c echo.Context) error {
	stored, err := a.Posts.GetAll(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("feed: load posts: %v", err)
	}
	posts := news.SortNewestFirst(news.MergeSeed(news.Seed(), stored))
	if len(posts) > feedSize {
		posts = posts[:feedSize]
	}

	ch := feedChannel{
		Title:       a.Config.Name,
		Link:        BuildURL(a.Config.URL),
		Description: a.Config.Description,
		Items:       make([]feedItem, 0, len(posts)),
	}
	for i, p := range posts {
		item := feedItem{
			Title:       p.SEOTitle(),
			Link:        BuildURL(a.Config.URL, "news", p.Slug),
			Description: p.MetaDescription,
			Category:    string(p.Topic),
			GUID:        feedGUID{Value: p.ID},
			Enclosure:   imageEnclosure(p),
		}
		if item.Description == "" {
			item.Description = markdown.Summary(p.Text, summaryLength)
		}
		if t, ok := news.ParseDate(p.Date); ok {
			item.PubDate = t.Format(time.RFC1123Z)
			if i == 0 {
				ch.LastBuildDate = item.PubDate
			}
		}
		ch.Items = append(ch.Items, item)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed{Version: "2.0", Channel: ch})
}

// imageEnclosure attaches the post's cover image, or the first gallery
// image of a series, when its type can be told from the extension.
func imageEnclosure(p news.Post) *feedEnclosure {
	u := p.ImageURL
	if u == "" && p.Format.Gallery() && len(p.Images) > 0 {
		u = p.Images[0]
	}
	if u == "" {
		return nil
	}
	typ := mime.TypeByExtension(path.Ext(u))
	if typ == "" {
		return nil
	}
	return &feedEnclosure{URL: u, Type: typ}
}
