package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gattscope.dev/internal/bluetooth"
)

// Cursor row style: black text on bright green = unmissable highlight
var cursorRowSty = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(ColorMatrixGreen).
	Bold(true)

// RenderDeviceList renders the scrollable device list panel with a
// cursor. The title stays fixed at the top; only the entries scroll.
func RenderDeviceList(devices []*bluetooth.Device, width, height, cursorIndex int) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	// Fixed header: title + separator (2 lines)
	title := StylePanelTitle.Render(fmt.Sprintf("DEVICES [%d]", len(devices)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}
	headerCount := len(headerLines)

	// Total inner height (excluding border top+bottom)
	innerH := height - 2
	if innerH < headerCount+1 {
		innerH = headerCount + 1
	}

	// Space available for device entries
	devSpace := innerH - headerCount
	if devSpace < 1 {
		devSpace = 1
	}

	// Build device entry lines
	var devLines []string
	if len(devices) == 0 {
		devLines = append(devLines, "")
		devLines = append(devLines, StyleHelp.Render(" No devices..."))
		devLines = append(devLines, StyleHelp.Render(" Waiting for scan"))
	} else {
		linesPerDevice := 4 // 3 content + 1 blank
		maxVisible := devSpace / linesPerDevice
		if maxVisible < 1 {
			maxVisible = 1
		}

		// Compute viewport start so cursor is always visible
		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}

		count := 0
		for i := viewStart; i < len(devices); i++ {
			entry := renderDeviceEntry(devices[i], innerW, i == cursorIndex)
			for _, l := range entry {
				if count >= devSpace {
					break
				}
				devLines = append(devLines, l)
				count++
			}
			if count >= devSpace {
				break
			}
		}
	}

	// Truncate device lines if somehow over budget
	if len(devLines) > devSpace {
		devLines = devLines[:devSpace]
	}

	// Pad device lines to fill remaining space
	for len(devLines) < devSpace {
		devLines = append(devLines, "")
	}

	// Combine: header (fixed) + device entries (scrolled, exact fit)
	all := make([]string, 0, innerH)
	all = append(all, headerLines...)
	all = append(all, devLines...)

	// Hard clamp to innerH (safety)
	if len(all) > innerH {
		all = all[:innerH]
	}

	content := strings.Join(all, "\n")
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(content)

	// Hard clamp rendered output to exactly `height` lines.
	// lipgloss Height() only sets a minimum; it won't truncate overflow.
	outLines := strings.Split(rendered, "\n")
	if len(outLines) > height {
		outLines = outLines[:height]
	}
	for len(outLines) < height {
		outLines = append(outLines, "")
	}
	return strings.Join(outLines, "\n")
}

func renderDeviceEntry(d *bluetooth.Device, maxW int, isCursor bool) []string {
	symbol := "*"
	tag := "[BLE]"
	if d.Type == bluetooth.DeviceTypeClassic {
		symbol = "B"
		tag = "[CLS]"
	}

	name := d.DisplayName()
	nameMax := maxW - 12
	if nameMax < 4 {
		nameMax = 4
	}
	if len(name) > nameMax {
		name = name[:nameMax]
	}

	company := d.Company()

	rssiStr := fmt.Sprintf("%ddBm", int(d.RSSI))
	distStr := fmt.Sprintf("~%.1fm", d.Distance)
	ageStr := Ago(d.LastSeen)

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf(">> %s %s %s", symbol, name, tag), maxW)
		raw2 := truncRaw(fmt.Sprintf("      %s  %s", d.MAC, company), maxW)
		raw3 := truncRaw(fmt.Sprintf("      %s  %s  %s", rssiStr, distStr, ageStr), maxW)
		return []string{
			cursorRowSty.Render(raw1),
			cursorRowSty.Render(raw2),
			cursorRowSty.Render(raw3),
			"",
		}
	}

	typeSty := StyleDeviceTypeBLE
	if d.Type == bluetooth.DeviceTypeClassic {
		typeSty = StyleDeviceTypeClassic
	}

	line1 := fmt.Sprintf("   %s %s %s", typeSty.Render(symbol), StyleDeviceName.Render(name), typeSty.Render(tag))
	line2 := fmt.Sprintf("      %s", StyleDeviceMAC.Render(d.MAC))
	if company != "" {
		line2 += "  " + StyleDeviceMAC.Render(company)
	}
	line3 := fmt.Sprintf("      %s  %s  %s",
		StyleDeviceRSSI.Render(rssiStr), StyleDeviceDist.Render(distStr), StyleHelp.Render(ageStr))

	return []string{line1, line2, line3, ""}
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if len(s) > w {
		return s[:w]
	}
	if len(s) < w {
		return s + strings.Repeat(" ", w-len(s))
	}
	return s
}
