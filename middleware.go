package astrosite

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/astrosite/storage"
)

const sessionName = "admin_session"

const (
	// newsBodyLimit bounds the JSON collection posted to the news API.
	newsBodyLimit = "5M"
	// uploadBodyLimit leaves room for multipart framing around a
	// media.MaxUploadSize file.
	uploadBodyLimit = "12M"
)

// immutablePrefixes hold content addressed by a timestamped or hashed
// name; responses under them never change.
var immutablePrefixes = []string{"/public/", "/uploads/", storage.MediaPrefix}

// privatePrefixes are never cached by browsers or proxies.
var privatePrefixes = []string{"/api/", "/admin", "/healthz"}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func isAdminPath(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/admin")
}

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)
	e.HTTPErrorHandler = a.httpErrorHandler

	e.Use(
		middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogStatus:  true,
			LogURI:     true,
			LogMethod:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				if v.Error != nil {
					c.Logger().Warnf("%s %s -> %d (%s): %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
					return nil
				}
				c.Logger().Infof("%s %s -> %d (%s)", v.Method, v.URI, v.Status, v.Latency)
				return nil
			},
		}),
		middleware.Recover(),
		middleware.GzipWithConfig(middleware.GzipConfig{
			Level: 5,
			Skipper: func(c echo.Context) bool {
				return hasAnyPrefix(c.Request().URL.Path, immutablePrefixes)
			},
		}),
		middleware.SecureWithConfig(a.secureConfig()),
		session.Middleware(a.newSessionStore()),
		middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "header:X-CSRF-Token,form:_csrf",
			CookieName:     "_csrf",
			CookiePath:     "/admin/",
			CookieSameSite: http.SameSiteLaxMode,
			CookieSecure:   a.Config.CookieSecure,
			CookieHTTPOnly: true,
			Skipper:        func(c echo.Context) bool { return !isAdminPath(c) },
			ErrorHandler: func(err error, c echo.Context) error {
				return c.String(http.StatusForbidden, "Forbidden")
			},
		}),
		middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
			RedirectCode: http.StatusMovedPermanently,
			Skipper:      func(c echo.Context) bool { return !isAdminPath(c) },
		}),
		cacheControlMiddleware,
	)
}

// secureConfig allows images from the blob service and embedded video from
// the two hosts the editor's video field accepts.
func (a *App) secureConfig() middleware.SecureConfig {
	imgSrc := "'self' data:"
	if a.Config.Storage.BlobToken != "" {
		imgSrc += " https:"
	}
	return middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; img-src " + imgSrc + "; " +
			"frame-src https://www.youtube.com https://player.vimeo.com",
		HSTSMaxAge: 31536000,
	}
}

// apiMiddleware returns the middleware applied to the /api group: CORS for
// browser clients on other origins.
func (a *App) apiMiddleware() []echo.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: a.Config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	})
	return []echo.MiddlewareFunc{echo.WrapMiddleware(c.Handler)}
}

// writeLimiter rate-limits API writes per client IP.
func (a *App) writeLimiter() echo.MiddlewareFunc {
	return echo.WrapMiddleware(httprate.Limit(
		a.Config.WriteRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests. Try again later."}` + "\n"))
		}),
	))
}

// loginLimiter allows five login attempts per IP per minute.
func (a *App) loginLimiter() echo.MiddlewareFunc {
	return echo.WrapMiddleware(httprate.Limit(
		5,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Too many login attempts. Try again later.", http.StatusTooManyRequests)
		}),
	))
}

func cacheControlMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		switch path := c.Request().URL.Path; {
		case hasAnyPrefix(path, immutablePrefixes):
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
		case hasAnyPrefix(path, privatePrefixes):
			h.Set("Cache-Control", "no-store")
		default:
			h.Set("Cache-Control", "public, max-age=3600")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/admin/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// checkSecret compares pass with the configured admin secret.
func (a *App) checkSecret(pass string) bool {
	if a.Config.AdminPasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.Config.AdminPasswordHash), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1
}

// IsAdmin checks if the current session is authenticated.
func IsAdmin(c echo.Context) bool {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	auth, ok := sess.Values["authenticated"].(bool)
	return ok && auth
}

func setAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["authenticated"] = true
	return sess.Save(c.Request(), c.Response())
}

func clearAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
