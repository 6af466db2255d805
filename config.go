// Package lgrep is a parallel recursive regular-expression line
// searcher. It compiles a pattern set into a layered matching pipeline
// (keyword filter, linear-time automaton, confirm engines), scans files
// through a fixed-memory streaming buffer, and searches directory trees
// either serially or with a pool of workers whose output is reassembled
// in the serial order.
//
// The packages divide the work as follows: matcher compiles and
// executes patterns, scanner owns the read/refill loop and the line
// printer, walker enumerates trees deterministically, parallel
// coordinates workers and ordered output buckets, and this package ties
// them to the invocation-level configuration.
package lgrep

import (
	"github.com/coregx/lgrep/matcher"
	"github.com/coregx/lgrep/scanner"
)

// DirPolicy selects how directory arguments are handled.
type DirPolicy int

const (
	// DirRead attempts to read a directory like an ordinary file.
	DirRead DirPolicy = iota
	// DirRecurse searches every file under the directory.
	DirRecurse
	// DirSkip silently ignores directories.
	DirSkip
)

// DevPolicy selects how devices, FIFOs, and sockets are handled.
type DevPolicy int

const (
	// DevReadCommandLine reads devices named on the command line but
	// skips those found during traversal (default).
	DevReadCommandLine DevPolicy = iota
	// DevRead reads devices wherever they appear.
	DevRead
	// DevSkip skips all devices.
	DevSkip
)

// ListMode selects the file-name summary modes (-l, -L).
type ListMode int

const (
	ListNone ListMode = iota
	ListMatching
	ListNonmatching
)

// ColorWhen is the --color policy.
type ColorWhen int

const (
	ColorNever ColorWhen = iota
	ColorAlways
	ColorAuto
)

// Config is the parsed invocation-level contract consumed by the
// driver. The command-line front end populates it; tests construct it
// directly.
type Config struct {
	Patterns []matcher.Pattern
	Dialect  matcher.Dialect

	CaseFold  bool // -i
	Invert    bool // -v
	WordMatch bool // -w
	LineMatch bool // -x

	// MaxCount is the -m budget per file; negative means unlimited.
	MaxCount int64

	// OutBefore and OutAfter are the context window; -1 means the
	// option was not given.
	OutBefore int64
	OutAfter  int64

	WithFilename bool // -H
	NoFilename   bool // -h
	LineNumber   bool // -n
	ByteOffset   bool // -b
	OnlyMatching bool // -o

	CountMatches bool     // -c
	ListFiles    ListMode // -l / -L

	Quiet          bool // -q: no output, exit at first match
	SuppressErrors bool // -s

	Binary      scanner.BinaryPolicy
	Directories DirPolicy
	Devices     DevPolicy

	// Follow follows symlinks during traversal (-R).
	Follow bool

	// Label is the display name for standard input.
	Label string

	NullData bool // -z: lines end with NUL
	NullSep  bool // -Z: NUL after the file name

	// Threads is the requested parallelism for recursive searches;
	// values below 2 select the serial pipeline.
	Threads int

	Color  ColorWhen
	Colors *scanner.ColorScheme // nil selects the default palette

	AlignTabs    bool // --initial-tab
	LineBuffered bool // --line-buffered

	// GroupSeparator is printed between non-adjacent context groups;
	// NoGroupSeparator suppresses it entirely.
	GroupSeparator   string
	NoGroupSeparator bool

	// Skip is the compiled exclusion predicate from the include and
	// exclude options; nil skips nothing.
	Skip func(name string, isDir bool) bool
}

// matcherOptions derives the compile options for the pattern set.
func (c *Config) matcherOptions() matcher.Options {
	eol := byte('\n')
	if c.NullData {
		eol = 0
	}
	return matcher.Options{
		Dialect:    c.Dialect,
		CaseFold:   c.CaseFold,
		MatchWords: c.WordMatch && !c.LineMatch,
		MatchLines: c.LineMatch,
		EOL:        eol,
	}
}
