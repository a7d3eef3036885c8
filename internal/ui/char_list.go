package ui

import (
	"fmt"
	"strings"
	"time"

	"gattscope.dev/internal/ble"
	"gattscope.dev/internal/uuids"
)

// CharRow is everything the characteristic pane renders for one row.
// The app builds these from its explorer state each frame.
type CharRow struct {
	Info      ble.CharInfo
	Notifying bool
	HasValue  bool
	Value     []byte
	Source    ble.ValueSource
	At        time.Time
	Err       error
}

// Name returns the assigned name or the short UUID.
func (r CharRow) Name() string {
	if n := uuids.Name(r.Info.UUID); n != "" {
		return n
	}
	return uuids.Short(r.Info.UUID)
}

// RenderCharList renders the explorer's characteristic pane for the
// selected service. discoverErr reports a failed characteristic
// discovery for that service.
func RenderCharList(rows []CharRow, svcLabel string, width, height, cursor int, focused, discovering bool, discoverErr error, previewBytes int) string {
	innerW := width - 4
	if innerW < 16 {
		innerW = 16
	}

	title := StylePanelTitle.Render(fmt.Sprintf("CHARACTERISTICS: %s", svcLabel))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}

	innerH := height - 2
	if innerH < len(headerLines)+1 {
		innerH = len(headerLines) + 1
	}
	rowSpace := innerH - len(headerLines)

	var lines []string
	switch {
	case discoverErr != nil:
		lines = append(lines, "", StyleValueError.Render(" "+discoverErr.Error()))
	case discovering:
		lines = append(lines, "", StyleHelp.Render(" Discovering characteristics..."))
	case len(rows) == 0:
		lines = append(lines, "", StyleHelp.Render(" No characteristics"))
	default:
		linesPerChar := 3 // 2 content + 1 blank
		maxVisible := rowSpace / linesPerChar
		if maxVisible < 1 {
			maxVisible = 1
		}
		viewStart := 0
		if cursor >= maxVisible {
			viewStart = cursor - maxVisible + 1
		}

		count := 0
		for i := viewStart; i < len(rows); i++ {
			entry := renderCharEntry(rows[i], innerW, i == cursor, previewBytes)
			for _, l := range entry {
				if count >= rowSpace {
					break
				}
				lines = append(lines, l)
				count++
			}
			if count >= rowSpace {
				break
			}
		}
	}

	for len(lines) < rowSpace {
		lines = append(lines, "")
	}
	if len(lines) > rowSpace {
		lines = lines[:rowSpace]
	}

	all := append(headerLines, lines...)
	content := strings.Join(all, "\n")

	border := StylePanelBorder
	if focused {
		border = StylePanelActive
	}
	return clampPanel(border.Width(width-2).Height(innerH).Render(content), height)
}

func renderCharEntry(r CharRow, maxW int, isCursor bool, previewBytes int) []string {
	notify := " "
	if r.Notifying {
		notify = "~"
	}

	props := "------"
	if r.Info.PropsKnown {
		props = r.Info.Props.Compact()
	}

	name := r.Name()
	short := uuids.Short(r.Info.UUID)
	detail := charDetail(r, short, previewBytes)

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf(">> %s %s [%s]", notify, name, props), maxW)
		raw2 := truncRaw("      "+detail, maxW)
		return []string{cursorRowSty.Render(raw1), cursorRowSty.Render(raw2), ""}
	}

	mark := " "
	if r.Notifying {
		mark = StyleNotifyMark.Render("~")
	}
	line1 := fmt.Sprintf("   %s %s %s", mark, StyleAttrName.Render(name), StylePropTag.Render("["+props+"]"))

	var line2 string
	if r.Err != nil {
		line2 = "      " + StyleValueError.Render(truncRaw(detail, maxW-6))
	} else {
		line2 = "      " + StyleValueHex.Render(truncRaw(detail, maxW-6))
	}
	return []string{line1, line2, ""}
}

// charDetail builds the second row: uuid plus the last value, or a
// placeholder when nothing was read yet.
func charDetail(r CharRow, short string, previewBytes int) string {
	if r.Err != nil {
		return fmt.Sprintf("%s  error: %v", short, r.Err)
	}
	if !r.HasValue {
		return fmt.Sprintf("%s  --", short)
	}

	hex := HexPreview(r.Value, previewBytes)
	ascii := ASCIIPreview(r.Value, previewBytes)
	src := "read"
	if r.Source == ble.SourceNotify {
		src = "notify"
	}
	return fmt.Sprintf("%s  %s  |%s|  %s %s", short, hex, ascii, src, Ago(r.At))
}
