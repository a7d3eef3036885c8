package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"gattscope.dev/internal/config"
)

type keyHint struct{ key, label string }

var scanKeys = []keyHint{
	{"Enter", "Connect"},
	{"S", "can"},
	{"P", "ause"},
	{"I", "nfo"},
	{"?", "Help"},
	{"Q", "uit"},
}

var explorerKeys = []keyHint{
	{"Tab", "Pane"},
	{"R", "ead"},
	{"N", "otify"},
	{"E", "xport"},
	{"X", "Disconnect"},
	{"?", "Help"},
	{"Q", "uit"},
}

// RenderMenuBar renders the top menu bar. The key hints follow the
// active screen.
func RenderMenuBar(width int, adapter string, explorer, scanning, demo bool) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := scanKeys
	if explorer {
		keys = explorerKeys
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	var status string
	switch {
	case explorer:
		status = StyleStatusScanning.Render("EXPLORER")
	case scanning:
		status = StyleStatusScanning.Render("SCANNING")
	default:
		status = StyleStatusPaused.Render("PAUSED")
	}

	adapterInfo := StyleMenuLabel.Render(fmt.Sprintf("Adapter: %s", adapter))
	if demo {
		adapterInfo = StyleStatusPaused.Render("DEMO")
	}

	left := StyleMenuKey.Render(title) + menu
	right := status + "  " + adapterInfo + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	padding := ""
	for i := 0; i < gap; i++ {
		padding += " "
	}

	return StyleMenuBar.Width(width).Render(left + padding + right)
}
