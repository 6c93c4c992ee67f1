package markdown

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRenderInline(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"**bold**", "<strong>bold</strong>"},
		{"*italic*", "<em>italic</em>"},
		{"`code`", "<code>code</code>"},
		{"[site](https://example.com)", `target="_blank"`},
	}
	for _, tt := range tests {
		got := string(Render(tt.input))
		if !strings.Contains(got, tt.expected) {
			t.Errorf("Render(%q) = %q, want it to contain %q", tt.input, got, tt.expected)
		}
	}
}

func TestRenderHeadingIDs(t *testing.T) {
	got := string(Render("## Life path seven"))
	if !strings.Contains(got, `<h2 id="life-path-seven">`) {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderSkipsRawHTML(t *testing.T) {
	got := string(Render("hello <script>alert(1)</script>"))
	if strings.Contains(got, "<script>") {
		t.Errorf("raw HTML kept: %q", got)
	}
}

func TestMarkdownComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := Markdown("# Title").Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<h1") {
		t.Errorf("component output = %q", buf.String())
	}
}

func TestSummary(t *testing.T) {
	src := "# Mercury\n\nThe planet **appears** to move backwards.\n\n- one\n- two"
	if got := Summary(src, 0); got != "Mercury The planet appears to move backwards. one two" {
		t.Errorf("Summary = %q", got)
	}
	if got := Summary(src, 20); got != "Mercury The planet…" {
		t.Errorf("Summary(20) = %q", got)
	}
	if got := Summary("", 10); got != "" {
		t.Errorf("Summary(empty) = %q", got)
	}
}
