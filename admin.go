package astrosite

import (
	"context"
	"errors"
	"html/template"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/astrosite/markdown"
	"github.com/eringen/astrosite/media"
	"github.com/eringen/astrosite/news"
	"github.com/eringen/astrosite/newsclient"
)

// maxAdminForm bounds the in-memory part of an editor form with inline uploads.
const maxAdminForm = 4 * media.MaxUploadSize

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, AdminLogin(loginView{SiteName: a.Config.Name, CSRF: CsrfToken(c)}))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"), false)
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if a.checkSecret(c.FormValue("password")) {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	return RenderStatus(c, http.StatusUnauthorized, AdminLogin(loginView{
		SiteName:  a.Config.Name,
		ShowError: true,
		CSRF:      CsrfToken(c),
	}))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}

func (a *App) handleAdminNew(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	post := news.Post{
		Date:   time.Now().Format("2006-01-02"),
		Topic:  news.TopicAstrology,
		Format: news.FormatFact,
	}
	return Render(c, AdminForm(a.formView(c, post, true, "")))
}

func (a *App) handleAdminPost(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	post, ok := news.FindByID(a.Content.Posts(c.Request().Context()), c.Param("id"))
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return Render(c, AdminForm(a.formView(c, post, false, "")))
}

func (a *App) handleAdminSave(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := req.ParseMultipartForm(maxAdminForm); err != nil {
			return c.String(http.StatusBadRequest, "Form too large.")
		}
	} else if err := req.ParseForm(); err != nil {
		return err
	}
	ctx := req.Context()

	post, isNew, problem := postFromForm(c, a.Content.Posts(ctx))
	if problem != "" {
		return RenderStatus(c, http.StatusBadRequest, AdminForm(a.formView(c, post, isNew, problem)))
	}

	if req.MultipartForm != nil {
		if files := req.MultipartForm.File["image_file"]; len(files) > 0 && files[0].Size > 0 {
			u, err := a.uploadInline(ctx, files[0])
			if err != nil {
				return RenderStatus(c, http.StatusBadGateway, AdminForm(a.formView(c, post, isNew, "Image upload failed: "+err.Error())))
			}
			post.ImageURL = u
		}
		for _, fh := range req.MultipartForm.File["gallery_files"] {
			if fh.Size == 0 {
				continue
			}
			u, err := a.uploadInline(ctx, fh)
			if err != nil {
				return RenderStatus(c, http.StatusBadGateway, AdminForm(a.formView(c, post, isNew, "Image upload failed: "+err.Error())))
			}
			post.Images = append(post.Images, u)
		}
	}

	if err := a.Content.SavePost(ctx, post); err != nil {
		if errors.Is(err, newsclient.ErrSyncFailed) {
			return a.renderAdminDashboard(c, "Saved on this device only.", true)
		}
		return err
	}
	return a.renderAdminDashboard(c, "saved", false)
}

// postFromForm builds a post from the editor form. Editing keeps the
// post's id and slug; a new post gets a fresh id and a derived slug. A
// non-empty problem describes why the form cannot be saved.
func postFromForm(c echo.Context, posts []news.Post) (post news.Post, isNew bool, problem string) {
	id := strings.TrimSpace(c.FormValue("id"))
	existing, found := news.FindByID(posts, id)
	isNew = !found
	if id == "" {
		id = news.NewID()
	}

	post = news.Post{
		ID:              id,
		Title:           strings.TrimSpace(c.FormValue("title")),
		Text:            c.FormValue("text"),
		Date:            strings.TrimSpace(c.FormValue("date")),
		Topic:           news.Topic(c.FormValue("topic")),
		Format:          news.Format(c.FormValue("format")),
		ImageURL:        strings.TrimSpace(c.FormValue("imageUrl")),
		Images:          FilterEmpty(strings.Split(c.FormValue("images"), "\n")),
		VideoURL:        strings.TrimSpace(c.FormValue("videoUrl")),
		MetaTitle:       strings.TrimSpace(c.FormValue("metaTitle")),
		MetaDescription: strings.TrimSpace(c.FormValue("metaDescription")),
	}
	if post.Title == "" {
		return post, isNew, "Title is required."
	}
	if found && existing.Slug != "" {
		post.Slug = existing.Slug
	} else {
		post.Slug = news.MakeSlug(post.Title, post.ID)
	}
	if post.Date == "" {
		post.Date = time.Now().Format("2006-01-02")
	}
	if _, ok := news.ParseDate(post.Date); !ok {
		return post, isNew, "Invalid date format. Use YYYY-MM-DD."
	}
	if !post.Topic.Valid() {
		return post, isNew, "Unknown topic."
	}
	if !post.Format.Valid() {
		return post, isNew, "Unknown format."
	}
	return post, isNew, ""
}

func (a *App) uploadInline(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return a.Content.Upload(ctx, fh.Filename, fh.Header.Get(echo.HeaderContentType), src)
}

func (a *App) handleAdminDelete(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := a.Content.DeletePost(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, newsclient.ErrSyncFailed) {
			return a.renderAdminDashboard(c, "Deleted on this device only.", true)
		}
		return err
	}
	return a.renderAdminDashboard(c, "deleted", false)
}

func (a *App) handleAdminSync(c echo.Context) error {
	if !IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	if err := a.Content.Sync(c.Request().Context()); err != nil {
		c.Logger().Warnf("admin: sync: %v", err)
		return a.renderAdminDashboard(c, "Sync failed.", true)
	}
	return a.renderAdminDashboard(c, "synced", false)
}

func (a *App) handleAdminPreview(c echo.Context) error {
	if !IsAdmin(c) {
		return c.NoContent(http.StatusUnauthorized)
	}
	return c.HTMLBlob(http.StatusOK, markdown.Render(c.FormValue("text")))
}

func (a *App) renderAdminDashboard(c echo.Context, msg string, syncFailed bool) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	topic := c.QueryParam("topic")
	ctx := c.Request().Context()
	posts := a.Content.Posts(ctx)
	syncFailed = syncFailed || a.Content.Pending(ctx)
	posts = news.SortNewestFirst(news.Filter(posts, query, news.Topic(topic)))
	return Render(c, AdminDashboard(dashboardView{
		SiteName:   a.Config.Name,
		Posts:      posts,
		Query:      query,
		Topic:      topic,
		Topics:     news.Topics,
		Message:    msg,
		SyncFailed: syncFailed,
		CSRF:       CsrfToken(c),
	}))
}

func (a *App) formView(c echo.Context, post news.Post, isNew bool, msg string) formView {
	v := formView{
		SiteName: a.Config.Name,
		Post:     post,
		IsNew:    isNew,
		Topics:   news.Topics,
		Formats:  news.Formats,
		Message:  msg,
		CSRF:     CsrfToken(c),
	}
	if post.Text != "" {
		v.Preview = template.HTML(markdown.Render(post.Text))
	}
	return v
}
