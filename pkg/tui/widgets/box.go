package widgets

import (
	"github.com/go-go-golems/orderly/pkg/tui/styles"
)

// Box is the bordered frame `orderly status` draws around the service
// table. Unlike a general-purpose TUI box widget it has no per-call style
// override and no secondary title — the status view only ever needs one
// titled, single-content frame.
type Box struct {
	Title   string
	Content string
	Width   int
	theme   styles.Theme
}

// NewBox creates a box titled title, bordered in the default theme.
func NewBox(title string) Box {
	return Box{Title: title, theme: styles.DefaultTheme()}
}

// WithContent sets the box content.
func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

// WithSize sets the box width; height is left to the terminal to scroll.
func (b Box) WithSize(width, _ int) Box {
	b.Width = width
	return b
}

// Render returns the styled box as a string.
func (b Box) Render() string {
	contentWidth := b.Width - 2 // account for left/right borders
	if contentWidth < 0 {
		contentWidth = 0
	}

	fullContent := b.Content
	if b.Title != "" {
		fullContent = b.theme.Title.Render(b.Title) + "\n" + b.Content
	}

	style := b.theme.Border
	if b.Width > 0 {
		style = style.Width(contentWidth)
	}
	return style.Render(fullContent)
}
