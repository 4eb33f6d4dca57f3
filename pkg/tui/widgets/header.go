package widgets

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/orderly/pkg/tui/styles"
)

// Keybind is one keybinding hint rendered in the footer.
type Keybind struct {
	Key   string
	Label string
}

// Header renders the title bar of `orderly status`: a title, overall
// status, and the uptime the caller supplies (StatusModel passes the time
// since the status viewer itself started). Keybindings live in Footer, not here —
// the status view only ever has the one ("q" to quit), so there is no
// need for a second keybind-rendering path in the header too.
type Header struct {
	Title      string
	Status     string
	StatusIcon string
	StatusOk   bool
	Uptime     time.Duration
	Width      int
	theme      styles.Theme
}

// NewHeader creates a new header.
func NewHeader(title string) Header {
	return Header{
		Title: title,
		theme: styles.DefaultTheme(),
	}
}

// WithStatus sets the status text and icon.
func (h Header) WithStatus(icon, status string, ok bool) Header {
	h.StatusIcon = icon
	h.Status = status
	h.StatusOk = ok
	return h
}

// WithUptime sets the uptime duration.
func (h Header) WithUptime(d time.Duration) Header {
	h.Uptime = d
	return h
}

// WithWidth sets the header width.
func (h Header) WithWidth(w int) Header {
	h.Width = w
	return h
}

// Render returns the styled header as a string.
func (h Header) Render() string {
	theme := h.theme

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Text).
		Background(theme.Primary).
		Padding(0, 1)
	leftParts := titleStyle.Render(h.Title)

	if h.Status != "" {
		statusStyle := theme.StatusDead
		if h.StatusOk {
			statusStyle = theme.StatusRunning
		}
		icon := h.StatusIcon
		if icon == "" {
			icon = styles.IconRunning
		}
		statusPart := statusStyle.Render(icon) + " " + lipgloss.NewStyle().Foreground(theme.Text).Render(h.Status)
		leftParts = lipgloss.JoinHorizontal(lipgloss.Center, leftParts, "  ", statusPart)
	}

	rightParts := ""
	if h.Uptime > 0 {
		rightParts = theme.TitleMuted.Render(fmt.Sprintf("Uptime: %s", formatDuration(h.Uptime)))
	}

	spacing := h.Width - lipgloss.Width(leftParts) - lipgloss.Width(rightParts)
	if spacing < 1 {
		spacing = 1
	}
	spacer := lipgloss.NewStyle().Width(spacing).Render("")
	headerLine := lipgloss.JoinHorizontal(lipgloss.Top, leftParts, spacer, rightParts)

	sepWidth := h.Width
	if sepWidth <= 0 {
		sepWidth = 80
	}
	separator := lipgloss.NewStyle().
		Foreground(theme.Muted).
		Render(strings.Repeat("━", sepWidth))

	return lipgloss.JoinVertical(lipgloss.Left, headerLine, separator)
}

// RenderKeybinds renders a list of keybindings, used by Footer.
func RenderKeybinds(keybinds []Keybind, theme styles.Theme) string {
	parts := make([]string, 0, len(keybinds)*2)
	for i, kb := range keybinds {
		if i > 0 {
			parts = append(parts, theme.TitleMuted.Render(" "))
		}
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]"))
		parts = append(parts, theme.Keybind.Render(" "+kb.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, parts...)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
