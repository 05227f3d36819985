// Package markdown renders markdown for the terminal.
package markdown

import (
	"github.com/charmbracelet/glamour"
)

// noMarginStyle removes document margins from whichever base style is used.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Renderer wraps glamour with sift's configuration.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// New creates a markdown renderer with the given width and glamour style
// name. An empty style or "auto" picks dark or light from the terminal.
func New(width int, style string) (*Renderer, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	base := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		base = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(
		base,
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Render transforms markdown to styled terminal output.
func (r *Renderer) Render(markdown string) (string, error) {
	return r.renderer.Render(markdown)
}
