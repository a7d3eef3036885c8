package ui

import (
	"fmt"
	"strings"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/uuids"
)

// ServiceTitle names a service for pane titles: assigned name when
// known, short UUID otherwise.
func ServiceTitle(uuid string) string {
	if n := uuids.Name(uuid); n != "" {
		return n
	}
	return uuids.Short(uuid)
}

// RenderServiceList renders the explorer's service pane. selected is
// the expanded service (its characteristics fill the right pane);
// cursor is the pane's own highlight.
func RenderServiceList(services []ble.ServiceInfo, width, height, cursor, selected int, focused, discovering bool) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	title := StylePanelTitle.Render(fmt.Sprintf("SERVICES [%d]", len(services)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}

	innerH := height - 2
	if innerH < len(headerLines)+1 {
		innerH = len(headerLines) + 1
	}
	rowSpace := innerH - len(headerLines)

	var rows []string
	switch {
	case discovering:
		rows = append(rows, "", StyleHelp.Render(" Discovering services..."))
	case len(services) == 0:
		rows = append(rows, "", StyleHelp.Render(" No services"))
	default:
		// One line per service; keep the cursor visible.
		viewStart := 0
		if cursor >= rowSpace {
			viewStart = cursor - rowSpace + 1
		}
		for i := viewStart; i < len(services) && len(rows) < rowSpace; i++ {
			rows = append(rows, renderServiceRow(services[i], innerW, i == cursor, i == selected))
		}
	}

	for len(rows) < rowSpace {
		rows = append(rows, "")
	}
	if len(rows) > rowSpace {
		rows = rows[:rowSpace]
	}

	all := append(headerLines, rows...)
	content := strings.Join(all, "\n")

	border := StylePanelBorder
	if focused {
		border = StylePanelActive
	}
	return clampPanel(border.Width(width-2).Height(innerH).Render(content), height)
}

func renderServiceRow(svc ble.ServiceInfo, maxW int, isCursor, isSelected bool) string {
	marker := "  "
	if isSelected {
		marker = "* "
	}

	name := uuids.Name(svc.UUID)
	short := uuids.Short(svc.UUID)

	if isCursor {
		var raw string
		if name != "" {
			raw = fmt.Sprintf(">> %s%s %s", marker, name, short)
		} else {
			raw = fmt.Sprintf(">> %s%s", marker, short)
		}
		return cursorRowSty.Render(truncRaw(raw, maxW))
	}

	// Styled rows are not width-clamped: escape codes make slicing
	// unsafe, and assigned names fit the pane widths the layout picks.
	if name != "" {
		return "   " + marker + StyleAttrName.Render(name) + " " + StyleUUID.Render(short)
	}
	return "   " + marker + StyleUUID.Render(short)
}

// clampPanel hard-clamps a rendered panel to exactly height lines.
// lipgloss Height() only sets a minimum; it won't truncate overflow.
func clampPanel(rendered string, height int) string {
	outLines := strings.Split(rendered, "\n")
	if len(outLines) > height {
		outLines = outLines[:height]
	}
	for len(outLines) < height {
		outLines = append(outLines, "")
	}
	return strings.Join(outLines, "\n")
}
