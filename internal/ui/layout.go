package ui

import "github.com/charmbracelet/lipgloss"

// ComposeScan joins the scan screen: menu bar on top, device list next
// to the optional detail panel, status bar on bottom. detail may be "".
func ComposeScan(menuBar, deviceList, detail, statusBar string) string {
	middle := deviceList
	if detail != "" {
		middle = lipgloss.JoinHorizontal(lipgloss.Top, deviceList, detail)
	}
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}

// ComposeExplorer joins the explorer screen: menu bar, service pane
// beside the characteristic pane, the value strip, status bar.
func ComposeExplorer(menuBar, services, chars, value, statusBar string) string {
	panes := lipgloss.JoinHorizontal(lipgloss.Top, services, chars)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, panes, value, statusBar)
}
