package astrosite

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/eringen/astrosite/news"
)

var adminTemplates = template.Must(template.New("admin").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`
{{define "head"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.}} admin</title>
<style>
body{font-family:system-ui,sans-serif;max-width:60rem;margin:2rem auto;padding:0 1rem;color:#1c1b22}
table{width:100%;border-collapse:collapse}td,th{padding:.4rem;border-bottom:1px solid #ddd;text-align:left}
label{display:block;margin-top:.8rem;font-weight:600}input,select,textarea{width:100%;padding:.4rem}
textarea{min-height:12rem}.msg{padding:.6rem;background:#eef}.warn{background:#fee}
.row{display:flex;gap:.5rem;align-items:center}.row form{display:inline}
</style>
</head>
<body>{{end}}

{{define "login"}}{{template "head" .SiteName}}
<h1>Admin</h1>
{{if .ShowError}}<p class="msg warn">Wrong password.</p>{{end}}
<form method="post" action="/admin/login/">
<input type="hidden" name="_csrf" value="{{.CSRF}}">
<label for="password">Password</label>
<input id="password" name="password" type="password" autofocus>
<p><button type="submit">Sign in</button></p>
</form>
</body></html>{{end}}

{{define "dashboard"}}{{template "head" .SiteName}}
<div class="row"><h1>News</h1>
<a href="/admin/post/new/">New post</a>
<form method="post" action="/admin/logout/"><input type="hidden" name="_csrf" value="{{.CSRF}}"><button>Log out</button></form>
</div>
{{if .Message}}<p class="msg">{{.Message}}</p>{{end}}
{{if .SyncFailed}}<div class="msg warn">
<p>Your change is kept on this device but the server did not accept it.</p>
<form method="post" action="/admin/sync/"><input type="hidden" name="_csrf" value="{{.CSRF}}"><button>Retry sync</button></form>
</div>{{end}}
<form method="get" action="/admin/" class="row">
<input name="q" value="{{.Query}}" placeholder="Search title or text">
<select name="topic"><option value="">All topics</option>
{{range .Topics}}<option value="{{.}}"{{if eq (print .) $.Topic}} selected{{end}}>{{.}}</option>{{end}}
</select>
<button>Filter</button>
</form>
<table>
<thead><tr><th>Date</th><th>Title</th><th>Topic</th><th>Format</th><th></th></tr></thead>
<tbody>
{{range .Posts}}<tr>
<td>{{.Date}}</td><td><a href="/admin/post/{{.ID}}/">{{.Title}}</a><br><small>/news/{{.Slug}}</small></td>
<td>{{.Topic}}</td><td>{{.Format}}</td>
<td><form method="post" action="/admin/post/{{.ID}}/delete/" onsubmit="return confirm('Delete this post?')">
<input type="hidden" name="_csrf" value="{{$.CSRF}}"><button>Delete</button></form></td>
</tr>{{else}}<tr><td colspan="5">No posts.</td></tr>{{end}}
</tbody>
</table>
</body></html>{{end}}

{{define "form"}}{{template "head" .SiteName}}
<p><a href="/admin/">Back</a></p>
<h1>{{if .IsNew}}New post{{else}}Edit post{{end}}</h1>
{{if .Message}}<p class="msg warn">{{.Message}}</p>{{end}}
<form method="post" action="/admin/save/" enctype="multipart/form-data">
<input type="hidden" name="_csrf" value="{{.CSRF}}">
<input type="hidden" name="id" value="{{.Post.ID}}">
<label for="title">Title</label><input id="title" name="title" value="{{.Post.Title}}" required>
<label for="date">Date</label><input id="date" name="date" value="{{.Post.Date}}" placeholder="YYYY-MM-DD">
<label for="topic">Topic</label>
<select id="topic" name="topic">{{range .Topics}}<option value="{{.}}"{{if eq . $.Post.Topic}} selected{{end}}>{{.}}</option>{{end}}</select>
<label for="format">Format</label>
<select id="format" name="format">{{range .Formats}}<option value="{{.}}"{{if eq . $.Post.Format}} selected{{end}}>{{.}}</option>{{end}}</select>
<label for="text">Text (markdown)</label><textarea id="text" name="text">{{.Post.Text}}</textarea>
<label for="imageUrl">Image URL</label><input id="imageUrl" name="imageUrl" value="{{.Post.ImageURL}}">
<label for="image_file">or upload an image</label><input id="image_file" name="image_file" type="file" accept="image/*">
<label for="images">Gallery images (one URL per line)</label><textarea id="images" name="images">{{join .Post.Images "\n"}}</textarea>
<label for="gallery_files">Add gallery images</label><input id="gallery_files" name="gallery_files" type="file" accept="image/*" multiple>
<label for="videoUrl">Video URL</label><input id="videoUrl" name="videoUrl" value="{{.Post.VideoURL}}">
<label for="metaTitle">SEO title</label><input id="metaTitle" name="metaTitle" value="{{.Post.MetaTitle}}">
<label for="metaDescription">SEO description</label><input id="metaDescription" name="metaDescription" value="{{.Post.MetaDescription}}">
<p><button type="submit">Save</button></p>
</form>
{{if .Preview}}<h2>Preview</h2><article>{{.Preview}}</article>{{end}}
</body></html>{{end}}
`))

type loginView struct {
	SiteName  string
	ShowError bool
	CSRF      string
}

type dashboardView struct {
	SiteName   string
	Posts      []news.Post
	Query      string
	Topic      string
	Topics     []news.Topic
	Message    string
	SyncFailed bool
	CSRF       string
}

type formView struct {
	SiteName string
	Post     news.Post
	IsNew    bool
	Topics   []news.Topic
	Formats  []news.Format
	Message  string
	Preview  template.HTML
	CSRF     string
}

func templateComponent(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return adminTemplates.ExecuteTemplate(w, name, data)
	})
}

// AdminLogin renders the admin sign-in page.
func AdminLogin(v loginView) templ.Component {
	return templateComponent("login", v)
}

// AdminDashboard renders the post list.
func AdminDashboard(v dashboardView) templ.Component {
	return templateComponent("dashboard", v)
}

// AdminForm renders the post editor.
func AdminForm(v formView) templ.Component {
	return templateComponent("form", v)
}

// Render writes cmp as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus renders cmp into a buffer and writes it with code. Nothing
// is sent when rendering fails, so the error handler can still respond.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	var buf bytes.Buffer
	if err := cmp.Render(c.Request().Context(), &buf); err != nil {
		return err
	}
	return c.HTMLBlob(code, buf.Bytes())
}
