package scanner

import (
	"bytes"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/coregx/lgrep/internal/textutil"
	"github.com/coregx/lgrep/matcher"
)

// flusher is implemented by buffered sinks; line-buffered output flushes
// after every emitted line.
type flusher interface {
	Flush() error
}

// errWriter latches the first write error so one failing sink does not
// produce a diagnostic per line. The driver inspects Err after a scan:
// a standard-output failure is fatal.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) write(p []byte) {
	if ew.err != nil {
		return
	}
	_, ew.err = ew.w.Write(p)
}

func (ew *errWriter) writeString(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = io.WriteString(ew.w, s)
}

func (ew *errWriter) writeByte(b byte) {
	ew.write([]byte{b})
}

func (ew *errWriter) flush() {
	if ew.err != nil {
		return
	}
	if f, ok := ew.w.(flusher); ok {
		ew.err = f.Flush()
	}
}

// sgrStart emits the escape that begins coloring with the given SGR
// parameters, followed by erase-to-line-end unless the ne capability
// suppressed it; sgrEnd resets. Empty parameter strings emit nothing.
func (s *Scanner) sgrStart(params string) {
	if params == "" {
		return
	}
	s.w.writeString("\x1b[" + params + "m")
	if !s.opts.Colors.NoEraseLine {
		s.w.writeString("\x1b[K")
	}
}

func (s *Scanner) sgrEnd(params string) {
	if params == "" {
		return
	}
	s.w.writeString("\x1b[m")
	if !s.opts.Colors.NoEraseLine {
		s.w.writeString("\x1b[K")
	}
}

func (s *Scanner) colorCap(get func(*ColorScheme) string) string {
	if s.opts.Colors == nil {
		return ""
	}
	return get(s.opts.Colors)
}

func (s *Scanner) printFilename() {
	fn := s.colorCap(func(c *ColorScheme) string { return c.Filename })
	s.sgrStart(fn)
	s.w.writeString(s.name)
	s.sgrEnd(fn)
}

func (s *Scanner) printSep(sep byte) {
	se := s.colorCap(func(c *ColorScheme) string { return c.Separator })
	s.sgrStart(se)
	s.w.writeByte(sep)
	s.sgrEnd(se)
}

// printOffset prints a line number or byte offset, space-padded to
// minWidth only when tab alignment is requested.
func (s *Scanner) printOffset(n int64, minWidth int, color string) {
	digits := strconv.FormatInt(n, 10)
	s.sgrStart(color)
	if s.opts.AlignTabs {
		for pad := minWidth - len(digits); pad > 0; pad-- {
			s.w.writeByte(' ')
		}
	}
	s.w.writeString(digits)
	s.sgrEnd(color)
}

// nlscan advances the lazy newline count up to position p.
func (s *Scanner) nlscan(p int) {
	s.totalnl += int64(bytes.Count(s.buf[s.lastnl:p], []byte{s.opts.EOL}))
	s.lastnl = p
}

// printLineHead emits the optional file-name, line-number, and
// byte-offset prefix for the region starting at beg. checkEnd bounds the
// encoding-error scan (the whole line normally, just the match bytes in
// only-matching mode); lim is the exclusive end of the line including
// its EOL byte. It returns false when the region has an encoding error
// and output must be abandoned for this line.
func (s *Scanner) printLineHead(beg, checkEnd, lim int, sep byte) bool {
	if s.opts.Binary != BinaryText && !utf8.Valid(s.buf[beg:checkEnd]) {
		s.encodingErrorOutput = true
		return false
	}

	pendingSep := false
	if s.outFile {
		s.printFilename()
		if s.opts.NullSep {
			s.w.writeByte(0)
		} else {
			pendingSep = true
		}
	}

	if s.opts.LineNumber {
		if s.lastnl < lim {
			s.nlscan(beg)
			s.totalnl++
			s.lastnl = lim
		}
		if pendingSep {
			s.printSep(sep)
		}
		s.printOffset(s.totalnl, 4, s.colorCap(func(c *ColorScheme) string { return c.LineNum }))
		pendingSep = true
	}

	if s.opts.ByteOffset {
		pos := s.totalcc + int64(beg-s.bufBeg)
		if pendingSep {
			s.printSep(sep)
		}
		s.printOffset(pos, 6, s.colorCap(func(c *ColorScheme) string { return c.ByteNum }))
		pendingSep = true
	}

	if pendingSep {
		if s.opts.AlignTabs {
			s.w.writeString("\t\b")
		}
		s.printSep(sep)
	}
	return true
}

// printLineMiddle walks the matches on the line [beg, lim) for
// only-matching output or match coloring. It returns the resume position
// for the caller's tail emission and false when an encoding error
// abandoned the line.
func (s *Scanner) printLineMiddle(beg, lim int, lineColor, matchColor string) (int, bool) {
	mid := -1
	cur := beg
	for cur < lim {
		off, mlen := s.m.Execute(s.buf[beg:lim], cur-beg)
		if off == matcher.NoMatch {
			break
		}
		b := beg + off
		if b >= lim {
			break
		}
		if mlen == 0 {
			// A zero-width match advances one byte; remember where
			// the uncolored run began so nothing is lost.
			mlen = 1
			if mid < 0 {
				mid = cur
			}
		} else {
			if s.opts.OnlyMatching {
				sep := byte(sepSelected)
				if s.opts.Invert {
					sep = sepRejected
				}
				if !s.printLineHead(b, b+mlen, lim, sep) {
					return cur, false
				}
			} else {
				s.sgrStart(lineColor)
				if mid >= 0 {
					cur = mid
					mid = -1
				}
				s.w.write(s.buf[cur:b])
			}
			s.sgrStart(matchColor)
			s.w.write(s.buf[b : b+mlen])
			s.sgrEnd(matchColor)
			if s.opts.OnlyMatching {
				s.w.writeByte(s.opts.EOL)
			}
		}
		cur = b + mlen
	}
	if s.opts.OnlyMatching {
		cur = lim
	} else if mid >= 0 {
		cur = mid
	}
	return cur, true
}

// printLineTail colors the remainder of a selected line after the last
// match, stopping short of the EOL byte.
func (s *Scanner) printLineTail(beg, lim int, lineColor string) int {
	contentEnd := textutil.ContentEnd(s.buf, beg, lim, s.opts.EOL)
	if contentEnd > beg {
		s.sgrStart(lineColor)
		s.w.write(s.buf[beg:contentEnd])
		s.sgrEnd(lineColor)
	}
	return contentEnd
}

// prline emits one line (or its match fragments) with prefix fields and
// color markup.
func (s *Scanner) prline(beg, lim int, sep byte) {
	if !s.opts.OnlyMatching {
		contentEnd := textutil.ContentEnd(s.buf, beg, lim, s.opts.EOL)
		if !s.printLineHead(beg, contentEnd, lim, sep) {
			return
		}
	}

	matching := (sep == sepSelected) != s.opts.Invert
	var lineColor, matchColor string
	if c := s.opts.Colors; c != nil {
		if (sep == sepSelected) != (s.opts.Invert && c.Reverse) {
			lineColor = c.SelectedLine
		} else {
			lineColor = c.ContextLine
		}
		if sep == sepSelected {
			matchColor = c.SelectedMatch
		} else {
			matchColor = c.ContextMatch
		}
	}

	cur := beg
	if (s.opts.OnlyMatching && matching) ||
		(s.opts.Colors != nil && (lineColor != "" || matchColor != "")) {
		if matching && (s.opts.OnlyMatching || matchColor != "") {
			var ok bool
			cur, ok = s.printLineMiddle(beg, lim, lineColor, matchColor)
			if !ok {
				return
			}
		}
		if !s.opts.OnlyMatching && lineColor != "" {
			cur = s.printLineTail(cur, lim, lineColor)
		}
	}

	if !s.opts.OnlyMatching && lim > cur {
		s.w.write(s.buf[cur:lim])
	}
	if s.opts.LineBuffered {
		s.w.flush()
	}
	s.lastout = lim
}
