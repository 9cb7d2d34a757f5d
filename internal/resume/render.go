package resume

import "github.com/charmbracelet/glamour"

// RenderTerminal renders the briefing with terminal styling. Callers
// fall back to plain Markdown when this fails (no TTY, odd TERM).
func RenderTerminal(b *Briefing) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return "", err
	}
	return r.Render(b.Markdown())
}
