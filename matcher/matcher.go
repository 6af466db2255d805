// Package matcher implements the layered matching pipeline: a keyword
// (multi-literal) filter, a linear-time automaton stage with an optional
// relaxed superset pre-filter, and per-sub-pattern confirm engines for
// back-references and word/line boundary checks.
//
// # Architecture
//
// A compiled Matcher is a cascade of engines, each narrowing the search
// space before the next:
//
//   - Keyword set: an Aho-Corasick automaton over literals that any match
//     must contain. A hit on an "exact" entry (one whose sub-pattern is
//     nothing but that literal) is a definitive match with no follow-up.
//   - Superset automaton: when word or line anchors wrap the pattern, a
//     second automaton over the unwrapped alternation over-approximates
//     the language and rejects lines cheaply.
//   - Automaton: a coregex meta engine over the (wrapped) alternation of
//     all sub-patterns; authoritative for patterns the linear engines can
//     express.
//   - Confirm engines: one per sub-pattern, used to disambiguate
//     back-references and to resolve word (-w) and whole-line (-x)
//     semantics at execution time. Sub-patterns the linear engines cannot
//     express (back-references, perl dialect extensions) compile with
//     regexp2 instead of the standard regexp package.
//
// # Thread safety
//
// A Matcher is immutable after Compile. The confirm engines carry
// per-search register state internally, but parallel workers should still
// hold their own Matcher obtained via Clone, keeping engine caches
// independent across threads.
package matcher

import (
	"github.com/coregx/coregex/meta"
)

// Dialect selects the pattern syntax understood by Compile.
type Dialect int

const (
	// DialectBasic is POSIX basic regular expression syntax with the
	// GNU extensions (\|, \+, \?, back-references).
	DialectBasic Dialect = iota
	// DialectExtended is POSIX extended regular expression syntax.
	DialectExtended
	// DialectFixed treats every pattern line as a literal string.
	DialectFixed
	// DialectAwk is the portable awk subset of extended syntax.
	DialectAwk
	// DialectGnuAwk is gawk's dialect of extended syntax.
	DialectGnuAwk
	// DialectPosixAwk is POSIX awk's dialect of extended syntax.
	DialectPosixAwk
	// DialectPerl is perl-compatible syntax. Sub-patterns the standard
	// regexp package rejects compile with regexp2.
	DialectPerl
)

// Pattern is one newline-separated sub-pattern together with its origin,
// used for file:line diagnostics when compilation fails.
type Pattern struct {
	Text string
	// File and Line identify the -f pattern file the text came from.
	// An empty File means the pattern was given on the command line.
	File string
	Line int
}

// Options configures compilation of a pattern set.
type Options struct {
	Dialect    Dialect
	CaseFold   bool // case-insensitive matching (-i)
	MatchWords bool // matches must form whole words (-w)
	MatchLines bool // matches must span whole lines (-x)
	// EOL is the line terminator byte: '\n' normally, 0 in null-data mode.
	EOL byte
}

// lineAutomaton is the slice of the meta engine API the executor needs.
// It exists so tests can substitute a trivial automaton.
type lineAutomaton interface {
	IsMatch(haystack []byte) bool
}

// Matcher is a compiled pattern set. Execute finds matching lines in a
// byte range; see the package comment for the stage cascade.
type Matcher struct {
	opts     Options
	patterns []Pattern

	kwset           *kwset
	kwsetExactCount int

	dfa     lineAutomaton // wrapped alternation; nil unless every sub-pattern parses linearly
	relaxed lineAutomaton // unwrapped superset; nil unless anchors wrap dfa

	subs []*subPattern

	// hasNonDFA is set when at least one sub-pattern could not join the
	// automaton alternation (back-reference or unsupported extension);
	// those lines must always go through the confirm engines.
	hasNonDFA bool

	// needConfirm forces the confirm stage even on automaton hits:
	// word/line modes and back-references cannot be settled by the
	// automaton alone.
	needConfirm bool
}

// Options returns the options the matcher was compiled with.
func (m *Matcher) Options() Options {
	return m.opts
}

// MatchesEmptyLine reports whether the pattern set selects an empty line.
// The driver consults this to tell the scanner whether NUL runs can be
// skipped wholesale.
func (m *Matcher) MatchesEmptyLine() bool {
	off, _ := m.Execute([]byte{m.eol()}, -1)
	return off != NoMatch
}

// Clone compiles an independent copy of the matcher for another worker.
// The engines themselves are safe for concurrent use, but a clone keeps
// automaton caches and confirm-engine state fully private per thread.
func (m *Matcher) Clone() (*Matcher, error) {
	return Compile(m.patterns, m.opts)
}

func (m *Matcher) eol() byte {
	return m.opts.EOL
}

var _ lineAutomaton = (*meta.Engine)(nil)
