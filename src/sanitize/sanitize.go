// Package sanitize cleans strings from user-supplied catalogs before they
// reach the dashboard or MCP responses. A message name carrying escape
// sequences would otherwise repaint the terminal.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// CSI sequences: \x1b[...<final byte>
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

	// OSC sequences terminated by BEL or ST: \x1b]...\x07
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)`)
)

// StripANSI removes CSI and OSC escape sequences.
func StripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	return s
}

// Label strips escape sequences and control characters and trims
// surrounding whitespace. Tabs and newlines become spaces so a label always
// renders on one line.
func Label(s string) string {
	s = StripANSI(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
