package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderErrorOverlay renders a centered modal over the body area:
// title, message, dismiss hint. The caller shows it instead of the
// normal body until the user acknowledges.
func RenderErrorOverlay(width, height int, title, message string) string {
	boxW := width - 8
	if boxW > 56 {
		boxW = 56
	}
	if boxW < 20 {
		boxW = 20
	}

	body := StyleOverlayTitle.Render(title) + "\n\n" +
		lipgloss.NewStyle().Foreground(ColorGreen).Width(boxW).Render(message) + "\n\n" +
		StyleHelp.Render("[enter] dismiss")

	box := StyleOverlayBox.Render(body)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// RenderHelpOverlay renders the key reference for the active screen.
func RenderHelpOverlay(width, height int, explorer bool) string {
	var rows []struct{ key, what string }
	if explorer {
		rows = []struct{ key, what string }{
			{"tab", "switch pane"},
			{"j/k, arrows", "move cursor"},
			{"enter", "open service / read characteristic"},
			{"r", "read characteristic"},
			{"n", "toggle notifications"},
			{"e", "export profile to JSON"},
			{"esc, x", "disconnect"},
			{"?", "close help"},
			{"q", "quit"},
		}
	} else {
		rows = []struct{ key, what string }{
			{"j/k, arrows", "move cursor"},
			{"enter, c", "connect to device"},
			{"s", "resume scan"},
			{"p", "pause scan"},
			{"i", "device detail"},
			{"?", "close help"},
			{"q", "quit"},
		}
	}

	var sb strings.Builder
	sb.WriteString(StylePanelTitle.Render("KEYS"))
	sb.WriteString("\n\n")
	for _, r := range rows {
		sb.WriteString(StyleMenuKey.Render(padKey(r.key)))
		sb.WriteString(StyleMenuLabel.Render(r.what))
		sb.WriteString("\n")
	}

	box := StyleHelpBox.Render(strings.TrimRight(sb.String(), "\n"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func padKey(k string) string {
	const w = 14
	if len(k) >= w {
		return k + " "
	}
	return k + strings.Repeat(" ", w-len(k))
}
