package serial

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxLine bounds an assembled input line in bytes.
const MaxLine = 256

// LineBuffer assembles received bytes into lines.
type LineBuffer struct {
	buf       []byte
	truncated bool
}

// Push adds b. It returns the completed line, NFC-normalised, when b ends
// one; carriage return and line feed both terminate a line and empty
// lines are skipped.
func (l *LineBuffer) Push(b byte) (string, bool) {
	switch b {
	case '\r', '\n':
		if len(l.buf) == 0 {
			return "", false
		}
		line := l.flush()
		return line, true
	case 0x08, 0x7f:
		l.backspace()
		return "", false
	}
	if len(l.buf) >= MaxLine {
		l.truncated = true
		return "", false
	}
	l.buf = append(l.buf, b)
	return "", false
}

// Truncated reports whether the line being assembled overflowed MaxLine.
func (l *LineBuffer) Truncated() bool { return l.truncated }

// backspace removes the last complete character.
func (l *LineBuffer) backspace() {
	if len(l.buf) == 0 {
		return
	}
	_, size := utf8.DecodeLastRune(l.buf)
	l.buf = l.buf[:len(l.buf)-size]
}

func (l *LineBuffer) flush() string {
	s := strings.ToValidUTF8(string(l.buf), "\uFFFD")
	l.buf = l.buf[:0]
	l.truncated = false
	return norm.NFC.String(s)
}
