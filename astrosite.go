// Package astrosite is the server of an astrology and numerology content
// site. It owns the news collection and media uploads, exposes them over a
// small JSON API, and ships an admin editor that writes through the same API.
//
// Storage is chosen once at startup: a durable backend when a credential is
// configured, the local filesystem otherwise.
package astrosite

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eringen/astrosite/media"
	"github.com/eringen/astrosite/news"
	"github.com/eringen/astrosite/newsclient"
	"github.com/eringen/astrosite/storage"
)

// App is the central astrosite application. It wires together storage,
// the news store, the uploader, the admin editor's client, middleware and
// routes.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Posts    *news.PostStore
	Uploader *media.Uploader
	Content  *newsclient.Cache

	durable      storage.Backend
	mirror       *newsclient.SQLiteStorage
	customRoutes []func(*App)
	staticDir    string
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		staticDir: "public",
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init selects the storage backend, builds the stores and registers
// middleware and routes. Start calls it; tests call it directly.
func (a *App) Init(ctx context.Context) error {
	if a.Config.AdminPassword == "" && a.Config.AdminPasswordHash == "" {
		return fmt.Errorf("astrosite: AdminPassword or AdminPasswordHash is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("astrosite: SessionSecret is required")
	}

	durable, err := storage.Open(ctx, a.Config.Storage)
	if err != nil {
		return fmt.Errorf("astrosite: open storage: %w", err)
	}
	a.durable = durable

	local := storage.NewFS(a.Config.Root)
	a.Posts = news.NewPostStore(durable, local, a.Echo.Logger)

	var uploads storage.Backend = storage.NewFS(a.staticDir)
	if durable != nil {
		uploads = durable
	}
	a.Uploader = media.NewUploader(uploads, media.WithMaxImageWidth(a.Config.MaxImageWidth))

	if a.Content == nil {
		mirror, err := newsclient.OpenSQLite(a.Config.MirrorPath)
		if err != nil {
			return fmt.Errorf("astrosite: open editor mirror: %w", err)
		}
		a.mirror = mirror
		a.Content = newsclient.New(a.Config.APIBaseURL, mirror,
			newsclient.WithTTL(a.Config.ContentTTL),
			newsclient.WithLogger(a.Echo.Logger),
		)
	}

	a.Echo.Logger.Infof("astrosite: news on %s, uploads on %s", a.Posts.Backend(), a.Uploader.Backend())

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and serves until the server stops.
func (a *App) Start() error {
	if err := a.Init(context.Background()); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.staticDir)
	e.Static("/uploads", filepath.Join(a.staticDir, "uploads"))
	e.GET("/healthz", a.handleHealth)

	// Public routes
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	if pg, ok := a.durable.(*storage.Postgres); ok {
		e.GET(storage.MediaPrefix+"*", mediaHandler(pg))
	}

	// News API
	api := e.Group("/api", a.apiMiddleware()...)
	api.GET("/news", a.handleNewsList)
	api.GET("/news/:slug", a.handleNewsPost)
	api.POST("/news", a.handleNewsReplace, a.writeLimiter(), middleware.BodyLimit(newsBodyLimit))
	api.POST("/upload", a.handleUpload, a.writeLimiter(), middleware.BodyLimit(uploadBodyLimit))
	api.OPTIONS("/news", handlePreflight)
	api.OPTIONS("/news/:slug", handlePreflight)
	api.OPTIONS("/upload", handlePreflight)

	// Admin editor
	e.GET("/admin/", a.handleAdmin)
	e.POST("/admin/login/", a.handleAdminLogin, a.loginLimiter())
	e.POST("/admin/logout/", handleAdminLogout)
	e.GET("/admin/post/new/", a.handleAdminNew)
	e.GET("/admin/post/:id/", a.handleAdminPost)
	e.POST("/admin/save/", a.handleAdminSave)
	e.POST("/admin/post/:id/delete/", a.handleAdminDelete)
	e.POST("/admin/sync/", a.handleAdminSync)
	e.POST("/admin/preview/", a.handleAdminPreview)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if pg, ok := a.durable.(*storage.Postgres); ok {
		pg.Close()
	}
	if a.mirror != nil {
		return a.mirror.Close()
	}
	return nil
}
