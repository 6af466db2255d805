package scanner

import "strings"

// ColorScheme holds the SGR parameter strings for each output element.
// An empty string leaves that element uncolored. The zero value disables
// everything; DefaultColors matches the conventional grep palette.
type ColorScheme struct {
	SelectedMatch string // mt/ms capability
	ContextMatch  string // mc capability
	Filename      string // fn
	LineNum       string // ln
	ByteNum       string // bn
	Separator     string // se
	SelectedLine  string // sl
	ContextLine   string // cx
	// Reverse swaps the selected/context line colors when -v is in
	// effect (rv capability).
	Reverse bool
	// NoEraseLine omits the erase-to-end-of-line escape that normally
	// follows each color change (ne capability).
	NoEraseLine bool
}

// DefaultColors returns the built-in palette: bold red matches, magenta
// file names, green line and byte numbers, cyan separators.
func DefaultColors() *ColorScheme {
	return &ColorScheme{
		SelectedMatch: "01;31",
		ContextMatch:  "01;31",
		Filename:      "35",
		LineNum:       "32",
		ByteNum:       "32",
		Separator:     "36",
	}
}

// ParseColors applies a GREP_COLORS-style capability list to c. Unknown
// capabilities and malformed entries are ignored, matching the tolerant
// behavior users expect from the environment variable.
func ParseColors(spec string, c *ColorScheme) {
	for _, entry := range strings.Split(spec, ":") {
		name, val, ok := strings.Cut(entry, "=")
		if !ok {
			switch name {
			case "rv":
				c.Reverse = true
			case "ne":
				c.NoEraseLine = true
			}
			continue
		}
		if !validSGRParams(val) {
			continue
		}
		switch name {
		case "mt":
			c.SelectedMatch = val
			c.ContextMatch = val
		case "ms":
			c.SelectedMatch = val
		case "mc":
			c.ContextMatch = val
		case "fn":
			c.Filename = val
		case "ln":
			c.LineNum = val
		case "bn":
			c.ByteNum = val
		case "se":
			c.Separator = val
		case "sl":
			c.SelectedLine = val
		case "cx":
			c.ContextLine = val
		}
	}
}

// validSGRParams accepts only digit-and-semicolon parameter strings so a
// hostile environment cannot inject arbitrary escape sequences.
func validSGRParams(s string) bool {
	for i := 0; i < len(s); i++ {
		if (s[i] < '0' || s[i] > '9') && s[i] != ';' {
			return false
		}
	}
	return true
}
