package ui

import (
	"fmt"
	"strings"
	"time"
)

// HexPreview renders data as spaced hex pairs, at most max bytes, with
// a trailing .. when truncated.
func HexPreview(data []byte, max int) string {
	if len(data) == 0 {
		return ""
	}
	truncated := false
	if max > 0 && len(data) > max {
		data = data[:max]
		truncated = true
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	out := strings.Join(parts, " ")
	if truncated {
		out += " .."
	}
	return out
}

// ASCIIPreview renders data as printable ASCII with dots for the rest,
// at most max bytes.
func ASCIIPreview(data []byte, max int) string {
	if len(data) == 0 {
		return ""
	}
	if max > 0 && len(data) > max {
		data = data[:max]
	}
	var sb strings.Builder
	for _, b := range data {
		if b >= 0x20 && b <= 0x7e {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

// Hexdump16 renders data as classic 16-byte hexdump rows:
// offset, hex bytes with a mid-row gap, and an ASCII gutter.
func Hexdump16(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var rows []string
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		var hexCol strings.Builder
		for i := 0; i < 16; i++ {
			if i == 8 {
				hexCol.WriteByte(' ')
			}
			if i < len(chunk) {
				fmt.Fprintf(&hexCol, "%02x ", chunk[i])
			} else {
				hexCol.WriteString("   ")
			}
		}

		rows = append(rows, fmt.Sprintf("%04x  %s |%s|", off, hexCol.String(), ASCIIPreview(chunk, 0)))
	}
	return rows
}

// Ago renders how long ago t happened, coarsely.
func Ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
