// Package markdown renders post text. Posts are written in CommonMark with
// the usual extensions; raw HTML in the source is dropped.
package markdown

import (
	"bytes"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/a-h/templ"
	md "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

const extensions = parser.CommonExtensions | parser.AutoHeadingIDs

func parse(src string) ast.Node {
	return parser.NewWithExtensions(extensions).Parse([]byte(src))
}

// Render converts src to HTML. Links open in a new tab.
func Render(src string) []byte {
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.HrefTargetBlank,
	})
	return md.Render(parse(src), r)
}

// Markdown returns a templ.Component that renders src as HTML.
func Markdown(src string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := w.Write(Render(src))
		return err
	})
}

// Summary returns the plain text of src with whitespace collapsed, cut to at
// most limit runes on a word boundary. A limit of 0 keeps everything.
func Summary(src string, limit int) string {
	var buf bytes.Buffer
	ast.WalkFunc(parse(src), func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Text:
			buf.Write(n.Literal)
		case *ast.Code:
			buf.Write(n.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			buf.WriteByte(' ')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			buf.WriteByte(' ')
		}
		return ast.GoToNext
	})
	text := strings.Join(strings.Fields(buf.String()), " ")
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	cut := string([]rune(text)[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
