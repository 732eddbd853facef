// Package render converts parsed message blocks into HTML for clients
// that cannot render markdown themselves.
package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/lk2023060901/pentestgpt-backend/internal/chat/content"
)

// RenderedBlock mirrors content.Block with text converted to HTML.
type RenderedBlock struct {
	Type content.BlockType `json:"type"`

	HTML string `json:"html,omitempty"`

	Command  string `json:"command,omitempty"`
	Output   string `json:"output,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`

	Seconds int `json:"seconds,omitempty"`

	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`

	Query string `json:"query,omitempty"`
}

type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		),
	}
}

// RenderMarkdown converts one markdown string to HTML.
func (r *Renderer) RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderMessage parses raw assistant text and renders each block,
// resolving citation references inside text blocks first.
func (r *Renderer) RenderMessage(raw string, citations []string) ([]RenderedBlock, error) {
	blocks := content.Parse(raw)
	out := make([]RenderedBlock, 0, len(blocks))

	for _, b := range blocks {
		rb := RenderedBlock{
			Type:     b.Type,
			Command:  b.Command,
			Output:   b.Output,
			ExitCode: b.ExitCode,
			Seconds:  b.Seconds,
			Path:     b.Path,
			Content:  b.Content,
			Query:    b.Query,
		}

		if b.Type == content.BlockText {
			html, err := r.RenderMarkdown(content.RewriteCitations(b.Text, citations))
			if err != nil {
				return nil, err
			}
			rb.HTML = html
		}

		out = append(out, rb)
	}

	return out, nil
}
