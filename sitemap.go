package astrosite

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/astrosite/news"
)

// staticRoutes are the site pages listed in the sitemap besides posts.
var staticRoutes = []string{"", "astrology", "numerology", "horoscope", "compatibility", "reading", "news"}

// fallbackRoutes make up the sitemap when the post collection is unavailable.
var fallbackRoutes = []string{"", "news"}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) handleSitemap(c echo.Context) error {
	stored, err := a.Posts.GetAll(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("sitemap: load posts: %v", err)
		return a.renderSitemap(c, fallbackRoutes, nil)
	}
	return a.renderSitemap(c, staticRoutes, news.MergeSeed(news.Seed(), stored))
}

func (a *App) renderSitemap(c echo.Context, routes []string, posts []news.Post) error {
	base := a.Config.URL
	urls := make([]sitemapURL, 0, len(routes)+len(posts))
	for _, r := range routes {
		if r == "" {
			urls = append(urls, sitemapURL{Loc: BuildURL(base)})
			continue
		}
		urls = append(urls, sitemapURL{Loc: BuildURL(base, r)})
	}
	for _, p := range posts {
		if p.Slug == "" {
			continue
		}
		u := sitemapURL{Loc: BuildURL(base, "news", p.Slug)}
		if t, ok := news.ParseDate(p.Date); ok {
			u.LastMod = t.Format("2006-01-02")
		}
		urls = append(urls, u)
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
