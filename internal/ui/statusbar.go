package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"gattscope.dev/internal/ble"
)

// RenderScanStatusBar renders the bottom status bar on the scan screen.
// note is a transient message (connect progress, scan advice) shown on
// the right.
func RenderScanStatusBar(width int, scanning bool, total, bleCount, classic int, note string) string {
	status := ""
	if scanning {
		status = StyleStatusScanning.Render("[SCANNING]")
	} else {
		status = StyleStatusPaused.Render("[PAUSED]")
	}

	info := fmt.Sprintf(" Devices: %d  BLE: %d  CLS: %d", total, bleCount, classic)
	content := status + StyleStatusBar.Foreground(ColorGreen).Render(info)

	return padStatusBar(width, content, note)
}

// RenderExplorerStatusBar renders the bottom status bar while connected
// (or connecting) to a peripheral.
func RenderExplorerStatusBar(width int, state ble.ConnState, address string, services, notifying int, note string) string {
	var badge string
	switch state {
	case ble.StateConnected:
		badge = StyleStatusScanning.Render("[CONNECTED]")
	case ble.StateConnecting, ble.StateDiscovering:
		badge = StyleStatusPaused.Render("[" + stateLabel(state) + "]")
	case ble.StateDisconnecting:
		badge = StyleStatusPaused.Render("[DISCONNECTING]")
	default:
		badge = StyleStatusPaused.Render("[IDLE]")
	}

	info := fmt.Sprintf(" %s  Services: %d", address, services)
	if notifying > 0 {
		info += fmt.Sprintf("  Notifying: %d", notifying)
	}
	content := badge + StyleStatusBar.Foreground(ColorGreen).Render(info)

	return padStatusBar(width, content, note)
}

func stateLabel(s ble.ConnState) string {
	switch s {
	case ble.StateConnecting:
		return "CONNECTING"
	case ble.StateDiscovering:
		return "DISCOVERING"
	}
	return "BUSY"
}

func padStatusBar(width int, content, note string) string {
	right := ""
	if note != "" {
		right = StyleStatusPaused.Render(note) + " "
	}

	gap := width - lipgloss.Width(content) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	padding := ""
	for i := 0; i < gap; i++ {
		padding += " "
	}

	return StyleStatusBar.Width(width).Render(content + padding + right)
}
