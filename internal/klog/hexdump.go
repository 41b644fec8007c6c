package klog

import (
	"fmt"
	"strings"
)

// Hexdump logs data at debug level, 16 bytes per line with an ASCII column.
func Hexdump(s Sink, data []byte) {
	if s == nil {
		return
	}
	if l, ok := s.(*Logger); ok && !l.Enabled(LevelDebug) {
		return
	}
	for _, line := range HexdumpLines(data) {
		s.Log(LevelDebug, line)
	}
}

// HexdumpLines formats data as hexdump lines.
func HexdumpLines(data []byte) []string {
	lines := make([]string, 0, (len(data)+15)/16)
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		var sb strings.Builder
		fmt.Fprintf(&sb, "%08X: ", off)
		for i := 0; i < 16; i++ {
			if i < len(row) {
				fmt.Fprintf(&sb, "%02X ", row[i])
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteByte('|')
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('|')
		lines = append(lines, sb.String())
	}
	return lines
}
