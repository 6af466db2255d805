package matcher

import (
	"unicode"
	"unicode/utf8"

	"github.com/coregx/lgrep/internal/textutil"
)

// NoMatch is the offset returned by Execute when no line matches.
const NoMatch = -1

// Execute searches buf for a matching line.
//
// With startHint < 0 it returns the offset of the first byte of any
// matching line and the line's length including its terminating EOL byte
// (buf is expected to end on a line boundary). With startHint >= 0 it
// returns the leftmost-then-longest exact match at or after startHint on
// the line containing startHint; this mode serves --only-matching and
// match highlighting.
//
// On failure it returns (NoMatch, 0). Execute never errors: pathological
// inputs were rejected at compile time.
func (m *Matcher) Execute(buf []byte, startHint int) (int, int) {
	eol := m.eol()
	if startHint >= 0 {
		beg := textutil.LineBegin(buf, startHint, eol)
		end := textutil.LineEnd(buf, startHint, eol)
		line := buf[beg:textutil.ContentEnd(buf, beg, end, eol)]
		off, length, ok := m.bestMatch(line, startHint-beg)
		if !ok {
			return NoMatch, 0
		}
		return beg + off, length
	}

	for pos := 0; pos < len(buf); {
		beg := pos
		exact := false
		if m.kwset != nil {
			hit, _, idx := m.kwset.find(buf, pos)
			if idx < 0 {
				return NoMatch, 0
			}
			beg = textutil.LineBegin(buf, hit, eol)
			// An exact hit is definitive. In UTF-8 a multi-byte
			// literal cannot begin on a continuation byte, so no
			// character-boundary re-check is needed here.
			exact = idx < m.kwsetExactCount
		}
		end := textutil.LineEnd(buf, beg, eol)
		if exact {
			return beg, end - beg
		}
		line := buf[beg:textutil.ContentEnd(buf, beg, end, eol)]

		if m.relaxed != nil && !m.relaxed.IsMatch(line) {
			pos = end
			continue
		}
		dfaHit := m.dfa != nil && m.dfa.IsMatch(line)
		if dfaHit && !m.needConfirm {
			return beg, end - beg
		}
		if (dfaHit || m.hasNonDFA) && m.confirmLine(line) {
			return beg, end - beg
		}
		pos = end
	}
	return NoMatch, 0
}

// confirmLine runs the per-sub-pattern engines over one line (EOL
// stripped) and reports whether the line counts as selected under the
// word/line/back-reference semantics the automaton cannot express.
func (m *Matcher) confirmLine(line []byte) bool {
	for _, sub := range m.subs {
		start, length, ok := sub.find(line, 0)
		if !ok {
			continue
		}
		switch {
		case m.opts.MatchLines:
			if length == len(line) {
				return true
			}
		case m.opts.MatchWords:
			if _, _, ok := m.wordAlign(sub, line, start, length, len(line)); ok {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// bestMatch finds the leftmost-then-longest exact match across all
// sub-patterns at or after ptr: a smaller offset wins, and on a tie the
// larger length wins.
func (m *Matcher) bestMatch(line []byte, ptr int) (int, int, bool) {
	bestOff := len(line) + 1
	bestLen := 0
	found := false
	for _, sub := range m.subs {
		start, length, ok := sub.find(line, ptr)
		if !ok {
			continue
		}
		if start > bestOff {
			continue
		}
		if m.opts.MatchWords && !m.opts.MatchLines {
			start, length, ok = m.wordAlign(sub, line, start, length, bestOff)
			if !ok {
				continue
			}
		}
		if start < bestOff || (start == bestOff && length > bestLen) {
			bestOff, bestLen = start, length
			found = true
		}
	}
	if !found {
		return 0, 0, false
	}
	return bestOff, bestLen, true
}

// wordAlign iterates a candidate match until it aligns with word
// boundaries. At each step it first checks the characters adjacent to
// the match; if either is word-constituent it tries a shorter match
// anchored at the same place, and failing that advances one byte and
// searches again. Candidates starting past limit are abandoned.
func (m *Matcher) wordAlign(sub *subPattern, line []byte, start, length, limit int) (int, int, bool) {
	for start <= limit {
		if !wordCharBefore(line, start) && !wordCharAfter(line, start+length) {
			return start, length, true
		}
		shorter := 0
		if length > 0 {
			length--
			// Patterns with $ cannot be rematched against a
			// truncated line: the anchor would hold early.
			if !sub.hasDollar && length > 0 {
				if l, ok := sub.matchPrefix(line, start, start+length); ok {
					shorter = l
				}
			}
		}
		if shorter > 0 {
			length = shorter
			continue
		}
		if start >= len(line) {
			break
		}
		start++
		s, l, ok := sub.find(line, start)
		if !ok {
			break
		}
		start, length = s, l
	}
	return 0, 0, false
}

// wordChar reports whether r is a word constituent: underscore or
// alphanumeric, using the wide-character classification.
func wordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordCharBefore(line []byte, pos int) bool {
	if pos <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRune(line[:pos])
	return r != utf8.RuneError && wordChar(r)
}

func wordCharAfter(line []byte, pos int) bool {
	if pos >= len(line) {
		return false
	}
	r, _ := utf8.DecodeRune(line[pos:])
	return r != utf8.RuneError && wordChar(r)
}

// find locates the leftmost match of the sub-pattern at or after byte
// offset at. Offsets and lengths are in bytes.
func (s *subPattern) find(line []byte, at int) (start, length int, ok bool) {
	if at > len(line) {
		return 0, 0, false
	}
	if s.re != nil {
		loc := s.re.FindIndex(line[at:])
		if loc == nil {
			return 0, 0, false
		}
		return at + loc[0], loc[1] - loc[0], true
	}
	text := string(line)
	match, err := s.re2.FindStringMatchStartingAt(text, runeIndex(text, at))
	if err != nil || match == nil {
		return 0, 0, false
	}
	mb := byteIndex(text, match.Index)
	return mb, byteIndex(text, match.Index+match.Length) - mb, true
}

// matchPrefix rematches the sub-pattern anchored at start, confined to
// line[start:end], returning the (longest) match length.
func (s *subPattern) matchPrefix(line []byte, start, end int) (int, bool) {
	window := line[start:end]
	if s.reAnchored != nil {
		loc := s.reAnchored.FindIndex(window)
		if loc == nil {
			return 0, false
		}
		return loc[1], true
	}
	text := string(window)
	match, err := s.re2Anch.FindStringMatch(text)
	if err != nil || match == nil {
		return 0, false
	}
	return byteIndex(text, match.Index+match.Length), true
}

// runeIndex converts a byte offset into s to the rune offset regexp2
// expects; byteIndex is the inverse.
func runeIndex(s string, byteOff int) int {
	return utf8.RuneCountInString(s[:byteOff])
}

func byteIndex(s string, runeOff int) int {
	if runeOff <= 0 {
		return 0
	}
	n := 0
	for i := range s {
		if n == runeOff {
			return i
		}
		n++
	}
	return len(s)
}
