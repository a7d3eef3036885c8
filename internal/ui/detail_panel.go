package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gattscope.dev/internal/bluetooth"
	"gattscope.dev/internal/profile"
	"gattscope.dev/internal/uuids"
)

// RenderDetailPanel renders the device detail panel shown next to the
// device list. cached is the profile from a previous session, nil when
// none is known.
func RenderDetailPanel(d *bluetooth.Device, width, height int, rssiHistory []float64, cached *profile.Profile) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	title := StylePanelTitle.Render("DEVICE DETAIL")
	escHint := StyleHelp.Render("[ESC]")
	titleLine := title + strings.Repeat(" ", max(0, innerW-lipgloss.Width(title)-lipgloss.Width(escHint))) + escHint

	sep := StyleSeparator.Render(strings.Repeat("-", innerW))

	lines := []string{titleLine, sep, ""}

	// Device info fields
	labelSty := lipgloss.NewStyle().Foreground(ColorMidGreen)
	valSty := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)

	fields := []struct{ label, value string }{
		{"Name", d.DisplayName()},
		{"MAC", d.MAC},
		{"Type", d.Type.String()},
		{"Company", d.Company()},
		{"RSSI", fmt.Sprintf("%d dBm", int(d.RSSI))},
		{"Distance", fmt.Sprintf("~%.1fm", d.Distance)},
		{"Last", Ago(d.LastSeen)},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		label := labelSty.Render(fmt.Sprintf("  %-10s", f.label))
		value := valSty.Render(f.value)
		lines = append(lines, label+value)
	}

	lines = append(lines, "")

	// Signal bar
	barWidth := innerW - 22
	if barWidth < 10 {
		barWidth = 10
	}
	bar := renderSignalBar(d.RSSI, barWidth)
	rssiLabel := valSty.Render(fmt.Sprintf(" %ddBm", int(d.RSSI)))
	lines = append(lines, labelSty.Render("  Signal ")+bar+rssiLabel)

	lines = append(lines, "")

	// RSSI sparkline
	if len(rssiHistory) > 0 {
		sparkW := innerW - 4
		if sparkW < 10 {
			sparkW = 10
		}
		lines = append(lines, labelSty.Render("  RSSI History:"))
		spark := renderSparkline(rssiHistory, sparkW)
		lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(spark))
		lines = append(lines, "")
	}

	// Advertised services
	if len(d.ServiceUUIDs) > 0 {
		lines = append(lines, labelSty.Render("  Advertised:"))
		for i, u := range d.ServiceUUIDs {
			if i >= 4 {
				lines = append(lines, StyleHelp.Render(fmt.Sprintf("    +%d more", len(d.ServiceUUIDs)-i)))
				break
			}
			lines = append(lines, "    "+StyleUUID.Render(serviceLabel(u)))
		}
		lines = append(lines, "")
	}

	// What a previous session found behind this address
	if cached != nil {
		chars := 0
		for _, s := range cached.Services {
			chars += len(s.Characteristics)
		}
		hint := fmt.Sprintf("  Cached: %d services, %d chars (%s)",
			len(cached.Services), chars, cached.DiscoveredAt.Format("2006-01-02"))
		lines = append(lines, StyleHelp.Render(truncRaw(hint, innerW)))
		lines = append(lines, "")
	}

	if d.Connectable() {
		lines = append(lines, StyleHelp.Render("  [enter] connect"))
	} else {
		lines = append(lines, StyleHelp.Render("  classic device: connect unavailable"))
	}

	// Pad to fill height
	for len(lines) < height-2 {
		lines = append(lines, "")
	}
	if len(lines) > height-2 {
		lines = lines[:height-2]
	}

	content := strings.Join(lines, "\n")
	return StylePanelActive.Width(width - 2).Height(height - 2).Render(content)
}

// serviceLabel names an advertised service when the UUID is assigned,
// otherwise shows the short form.
func serviceLabel(uuid string) string {
	if n := uuids.Name(uuid); n != "" {
		return fmt.Sprintf("%s %s", n, uuids.Short(uuid))
	}
	return uuids.Short(uuid)
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := (rssi + 100.0) / 70.0
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(math.Round(ratio * float64(width)))

	bar := strings.Repeat("|", filled) + strings.Repeat("-", width-filled)
	filledPart := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Render(bar[:filled])
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(bar[filled:])
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	// Find min/max for scaling
	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	// Take last `width` values
	start := 0
	if len(values) > width {
		start = len(values) - width
	}

	var sb strings.Builder
	for i := start; i < len(values); i++ {
		idx := int((values[i] - minV) / rng * float64(len(chars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(chars) {
			idx = len(chars) - 1
		}
		sb.WriteByte(chars[idx])
	}

	return sb.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
