package astrosite

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eringen/astrosite/media"
	"github.com/eringen/astrosite/news"
	"github.com/eringen/astrosite/storage"
)

type apiError struct {
	Error string `json:"error"`
}

func (a *App) handleNewsList(c echo.Context) error {
	data, err := a.Posts.GetRaw(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("news: list: %v", err)
		data = []byte("[]")
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (a *App) handleNewsPost(c echo.Context) error {
	post, err := a.Posts.FindBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, news.ErrNotFound) {
			return c.JSON(http.StatusNotFound, apiError{Error: "Post not found"})
		}
		return err
	}
	return c.JSON(http.StatusOK, post)
}

func (a *App) handleNewsReplace(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Could not read request body"})
	}
	if err := a.Posts.ReplaceAll(c.Request().Context(), body); err != nil {
		if errors.Is(err, news.ErrNotArray) {
			return c.JSON(http.StatusBadRequest, apiError{Error: "Expected a JSON array of posts"})
		}
		c.Logger().Errorf("news: replace: %v", err)
		return c.JSON(http.StatusInternalServerError, apiError{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (a *App) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "No file provided"})
	}
	if file.Size > media.MaxUploadSize {
		return c.JSON(http.StatusBadRequest, apiError{Error: "File too large (max 10MB)"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, apiError{Error: err.Error()})
	}
	defer src.Close()

	url, err := a.Uploader.Upload(c.Request().Context(), src, file.Filename, file.Header.Get(echo.HeaderContentType))
	if err != nil {
		switch {
		case errors.Is(err, media.ErrEmpty):
			return c.JSON(http.StatusBadRequest, apiError{Error: "No file provided"})
		case errors.Is(err, media.ErrTooLarge):
			return c.JSON(http.StatusBadRequest, apiError{Error: "File too large (max 10MB)"})
		}
		c.Logger().Errorf("upload: %v", err)
		return c.JSON(http.StatusInternalServerError, apiError{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"url": absoluteURL(c, url)})
}

// absoluteURL turns a site-relative URL into one on the request's own
// scheme and host.
func absoluteURL(c echo.Context, u string) string {
	if !strings.HasPrefix(u, "/") {
		return u
	}
	return c.Scheme() + "://" + c.Request().Host + u
}

// mediaHandler serves uploads stored in the Postgres object table, the only
// backend that hands out /media/ URLs.
func mediaHandler(pg *storage.Postgres) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		key := c.Param("*")
		data, err := pg.Get(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				return echo.ErrNotFound
			}
			return err
		}
		contentType, err := pg.ContentType(ctx, key)
		if err != nil || contentType == "" {
			contentType = http.DetectContentType(data)
		}
		return c.Blob(http.StatusOK, contentType, data)
	}
}

func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": a.Posts.Backend(),
	})
}

func handlePreflight(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	he, ok := err.(*echo.HTTPError)
	if ok {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/") {
		msg := http.StatusText(code)
		if ok {
			if m, isString := he.Message.(string); isString {
				msg = m
			}
		}
		_ = c.JSON(code, apiError{Error: msg})
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
