package ui

import (
	"fmt"
	"strings"

	"gattscope.dev/internal/ble"
)

// RenderValuePane renders the hexdump strip for the characteristic
// under the cursor. row is nil when no characteristic is selected.
func RenderValuePane(row *CharRow, width, height int) string {
	innerW := width - 4
	if innerW < 16 {
		innerW = 16
	}
	innerH := height - 2
	if innerH < 2 {
		innerH = 2
	}

	var lines []string
	switch {
	case row == nil:
		lines = append(lines, StyleHelp.Render(" Select a characteristic"))
	case row.Err != nil:
		lines = append(lines, StylePanelTitle.Render("VALUE: "+row.Name()))
		lines = append(lines, " "+StyleValueError.Render(row.Err.Error()))
	case !row.HasValue:
		lines = append(lines, StylePanelTitle.Render("VALUE: "+row.Name()))
		var hints []string
		if !row.Info.PropsKnown || row.Info.Props.CanRead() {
			hints = append(hints, "[r] read")
		}
		if !row.Info.PropsKnown || row.Info.Props.CanNotify() {
			hints = append(hints, "[n] notify")
		}
		if len(hints) == 0 {
			hints = append(hints, "no readable value")
		}
		lines = append(lines, StyleHelp.Render(" "+strings.Join(hints, "   ")))
	default:
		src := "read"
		if row.Source == ble.SourceNotify {
			src = "notify"
		}
		header := fmt.Sprintf("VALUE: %s  (%d bytes, %s %s)", row.Name(), len(row.Value), src, Ago(row.At))
		lines = append(lines, StylePanelTitle.Render(header))
		for _, h := range Hexdump16(row.Value) {
			if len(lines) >= innerH {
				break
			}
			lines = append(lines, " "+StyleValueHex.Render(h))
		}
	}

	for len(lines) < innerH {
		lines = append(lines, "")
	}
	if len(lines) > innerH {
		lines = lines[:innerH]
	}

	content := strings.Join(lines, "\n")
	return clampPanel(StylePanelBorder.Width(width-2).Height(innerH).Render(content), height)
}
