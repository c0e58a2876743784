// Package render converts assistant replies from markdown to HTML.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer turns reply markdown into HTML. Raw HTML in the source is escaped.
type Renderer struct {
	md goldmark.Markdown
}

// New creates a Renderer with GitHub-flavoured lists and line breaks.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// HTML renders one markdown fragment.
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Parts renders each reply part, falling back to the raw text of a part that
// fails to render.
func (r *Renderer) Parts(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		h, err := r.HTML(p)
		if err != nil {
			h = p
		}
		out[i] = h
	}
	return out
}
