package display

import "github.com/charmbracelet/lipgloss"

// Adaptive colors, the same hue in light and dark terminals.
var (
	colorHost    = lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FAFFF"}
	colorOK      = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#87D787"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD75F"}
	colorError   = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6C6C6C", Dark: "#9E9E9E"}
	colorCommand = lipgloss.AdaptiveColor{Light: "#5F00AF", Dark: "#AF87FF"}
)

type styles struct {
	host    lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	command lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		host:    r.NewStyle().Foreground(colorHost).Bold(true),
		ok:      r.NewStyle().Foreground(colorOK),
		warn:    r.NewStyle().Foreground(colorWarn),
		err:     r.NewStyle().Foreground(colorError).Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		command: r.NewStyle().Foreground(colorCommand),
	}
}
