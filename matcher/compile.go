package matcher

import (
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/coregx/coregex/meta"
	"github.com/dlclark/regexp2"
)

// subPattern is one compiled confirm engine. Exactly one of re and re2 is
// non-nil: re for patterns the standard engine expresses, re2 for
// back-references and perl-only constructs.
type subPattern struct {
	re         *regexp.Regexp  // floating search, leftmost-longest
	reAnchored *regexp.Regexp  // \A-anchored, for word-retry rematches
	re2        *regexp2.Regexp // back-reference engine
	re2Anch    *regexp2.Regexp
	hasDollar  bool
}

// Compile builds a Matcher from a pattern set. Each pattern is one
// newline-separated sub-pattern; a failure is reported as a CompileError
// carrying the pattern's origin.
func Compile(patterns []Pattern, opts Options) (*Matcher, error) {
	// An empty pattern set (an empty -f file) selects nothing; Execute
	// then reports NoMatch for every line, which -v turns into "all".
	m := &Matcher{opts: opts, patterns: patterns}

	var dfaAlt []string
	var exactLits, mustLits []string
	kwOK := !opts.CaseFold

	for _, p := range patterns {
		tr, err := translate(p.Text, opts.Dialect)
		if err != nil {
			return nil, &CompileError{Pattern: p, Err: err}
		}
		sub := &subPattern{hasDollar: tr.hasDollar}
		full := group(tr.pattern, opts.CaseFold)

		if !tr.backref {
			if re, rerr := regexp.Compile(full); rerr == nil {
				re.Longest()
				sub.re = re
				sub.reAnchored = regexp.MustCompile(`\A` + full)
				sub.reAnchored.Longest()
				dfaAlt = append(dfaAlt, tr.pattern)
			}
		}
		if sub.re == nil {
			flags := regexp2.None
			if opts.CaseFold {
				flags |= regexp2.IgnoreCase
			}
			re2, rerr := regexp2.Compile(tr.pattern, flags)
			if rerr != nil {
				return nil, &CompileError{Pattern: p, Err: rerr}
			}
			sub.re2 = re2
			re2a, rerr := regexp2.Compile(`\A(?:`+tr.pattern+`)`, flags)
			if rerr != nil {
				return nil, &CompileError{Pattern: p, Err: rerr}
			}
			sub.re2Anch = re2a
			m.hasNonDFA = true
		}
		m.subs = append(m.subs, sub)

		if kwOK {
			kwOK = seedKeywords(tr, &exactLits, &mustLits)
		}
	}

	if len(dfaAlt) > 0 && len(dfaAlt) == len(m.subs) {
		if err := m.buildAutomata(dfaAlt); err != nil {
			return nil, err
		}
	}
	m.needConfirm = opts.MatchWords || opts.MatchLines || m.hasNonDFA

	// With word or line anchors the unwrapped sub-pattern language no
	// longer collapses to its literal, so nothing is exact.
	if opts.MatchWords || opts.MatchLines {
		mustLits = append(mustLits, exactLits...)
		exactLits = nil
	}
	if kwOK {
		lits := append(append([]string(nil), exactLits...), mustLits...)
		kw, err := newKwset(lits)
		if err != nil {
			return nil, err
		}
		m.kwset = kw
		m.kwsetExactCount = len(exactLits)
	}
	return m, nil
}

// seedKeywords extracts the must-literal of one sub-pattern into the
// exact or filter list. It returns false when the sub-pattern yields no
// mandatory literal, which disables the keyword stage entirely: a miss
// on a partial set could wrongly reject lines matched by the uncovered
// sub-patterns.
func seedKeywords(tr translated, exact, must *[]string) bool {
	if tr.backref {
		return false
	}
	re, err := syntax.Parse(tr.pattern, syntax.Perl)
	if err != nil {
		return false
	}
	lit, isExact := mustLiteral(re)
	if lit == "" {
		return false
	}
	if isExact {
		*exact = append(*exact, lit)
	} else {
		*must = append(*must, lit)
	}
	return true
}

// buildAutomata compiles the wrapped alternation as the authoritative
// automaton and, when anchors wrap it, the unwrapped alternation as the
// relaxed superset pre-filter.
func (m *Matcher) buildAutomata(alts []string) error {
	grouped := make([]string, len(alts))
	for i, a := range alts {
		grouped[i] = "(?:" + a + ")"
	}
	plain := "(?:" + strings.Join(grouped, "|") + ")"
	wrapped := plain
	switch {
	case m.opts.MatchLines:
		wrapped = "^" + plain + "$"
	case m.opts.MatchWords:
		wrapped = "(?:^|[^[:alnum:]_])" + plain + "(?:[^[:alnum:]_]|$)"
	}
	if m.opts.CaseFold {
		plain = "(?i)" + plain
		wrapped = "(?i)" + wrapped
	}

	dfa, err := compileAutomaton(wrapped)
	if err != nil {
		return err
	}
	m.dfa = dfa
	if wrapped != plain {
		relaxed, err := compileAutomaton(plain)
		if err != nil {
			return err
		}
		m.relaxed = relaxed
	}
	return nil
}

// compileAutomaton prefers the coregex meta engine and falls back to the
// standard engine for the rare construct meta rejects; both run in time
// linear in the line length.
func compileAutomaton(pattern string) (lineAutomaton, error) {
	if e, err := meta.Compile(pattern); err == nil {
		return e, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return stdAutomaton{re}, nil
}

type stdAutomaton struct {
	re *regexp.Regexp
}

func (a stdAutomaton) IsMatch(haystack []byte) bool {
	return a.re.Match(haystack)
}

// group wraps a translated sub-pattern for standalone compilation,
// applying case folding outside the group so it covers the whole body.
func group(pat string, fold bool) string {
	if fold {
		return "(?i)(?:" + pat + ")"
	}
	return "(?:" + pat + ")"
}
