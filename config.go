package astrosite

import (
	"strings"
	"time"

	"github.com/eringen/astrosite/newsclient"
	"github.com/eringen/astrosite/storage"
)

// SiteConfig holds all configuration for an astrosite server.
type SiteConfig struct {
	Name        string // Site name (default "Astrosite")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for the feed

	Addr string // Listen address (default ":3000")
	Root string // Directory holding data/news.json (default ".")

	// Storage selects the durable backend. With no credential set the
	// server runs on the local file only.
	Storage storage.Config

	AdminPassword     string // Shared admin secret, compared in constant time
	AdminPasswordHash string // bcrypt hash of the admin secret; wins over AdminPassword
	SessionSecret     string // Required: session encryption secret
	CookieSecure      bool   // Set true for HTTPS

	APIBaseURL string        // Base URL the admin editor reaches the news API at (default "http://localhost" + Addr)
	MirrorPath string        // SQLite file for the editor's local copy (default "data/mirror.db")
	ContentTTL time.Duration // In-memory lifetime of the editor's collection (default 0, always revalidate)

	MaxImageWidth  int      // Downscale wider image uploads; 0 keeps originals
	AllowedOrigins []string // CORS origins for /api (default "*")
	WriteRateLimit int      // API write requests per IP per minute (default 60)

	// GenerativeAPIKey is passed through for the reading flow, which lives
	// outside this server.
	GenerativeAPIKey string
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Astrosite"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Root == "" {
		c.Root = "."
	}
	if c.APIBaseURL == "" {
		addr := c.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		c.APIBaseURL = "http://" + addr
	}
	if c.MirrorPath == "" {
		c.MirrorPath = "data/mirror.db"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.WriteRateLimit == 0 {
		c.WriteRateLimit = 60
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for static assets and local uploads (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithContentCache replaces the admin editor's news client.
func WithContentCache(c *newsclient.Cache) Option {
	return func(a *App) {
		a.Content = c
	}
}
