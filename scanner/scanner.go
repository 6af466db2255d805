// Package scanner implements the streaming buffer engine: a read/refill
// loop that scans one open descriptor with fixed memory, locating
// candidate lines for the matcher and emitting selected lines through
// the line printer.
//
// The buffer holds a live window [bufBeg, bufLim) preceded by a one-byte
// sentinel set to the end-of-line byte, so reverse line scans never fall
// off the front, and followed by a few scratch bytes so word-sized reads
// past the window stay defined. The residue of an incomplete trailing
// line, plus up to OutBefore lines of leading context, is carried across
// refills.
package scanner

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/coregx/lgrep/internal/textutil"
	"github.com/coregx/lgrep/matcher"
)

const (
	// initialBufSize is the starting live capacity; long lines grow the
	// buffer by doubling and it is never shrunk.
	initialBufSize = 32 * 1024
	wordSize       = 8
)

// Scanner drives the refill loop for one file at a time. It is reused
// across files so the grown buffer amortizes; it is not safe for
// concurrent use — parallel workers each own one.
type Scanner struct {
	m    *matcher.Matcher
	opts Options

	buf       []byte
	bufBeg    int
	bufLim    int
	bufOffset int64 // file offset corresponding to bufLim
	desc      *os.File
	pagesize  int

	// Per-file scan state, reset by Grep.
	totalcc             int64 // bytes before bufBeg
	totalnl             int64 // newlines counted up to lastnl
	lastnl              int
	lastout             int // -1 when no line was output from this window
	outleft             int64
	pending             int64
	afterLastMatch      int64
	skipNuls            bool
	encodingErrorOutput bool
	seekDataFailed      bool
	doneOnMatch         bool
	outQuiet            bool
	usedGroupSep        bool

	// Printer state for the current file.
	w       *errWriter
	name    string
	outFile bool
}

// New returns a scanner bound to a compiled matcher. The options are
// fixed for the scanner's lifetime.
func New(m *matcher.Matcher, opts Options) *Scanner {
	return &Scanner{
		m:        m,
		opts:     opts,
		pagesize: os.Getpagesize(),
	}
}

// Err returns the first write error the printer encountered, if any.
// A failing standard output is fatal to the process; the driver checks
// this after every file.
func (s *Scanner) Err() error {
	if s.w == nil {
		return nil
	}
	return s.w.err
}

// AfterLastMatch returns the file offset just past the last printed
// match, used to reposition stdin when -m cuts a scan short.
func (s *Scanner) AfterLastMatch() int64 { return s.afterLastMatch }

// BufOffset returns the file offset consumed so far.
func (s *Scanner) BufOffset() int64 { return s.bufOffset }

// OutLeft returns the remaining -m budget after a scan.
func (s *Scanner) OutLeft() int64 { return s.outleft }

func (s *Scanner) reset(f *os.File, st os.FileInfo) error {
	if s.buf == nil {
		s.buf = make([]byte, initialBufSize+s.pagesize+wordSize)
	}
	s.bufBeg = 1
	s.bufLim = 1
	s.buf[0] = s.opts.EOL
	s.desc = f

	if usableSize(st) && f != os.Stdin {
		s.bufOffset = 0
	} else if f == os.Stdin {
		off, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			// Unseekable stdin starts the offset count at zero.
			off = 0
		}
		s.bufOffset = off
	} else {
		s.bufOffset = 0
	}
	return nil
}

func usableSize(st os.FileInfo) bool {
	return st != nil && st.Mode().IsRegular()
}

func alignTo(off, page int) int {
	return (off + page - 1) / page * page
}

// fillbuf reads more data, preserving the last save bytes of the live
// window. The buffer grows (doubling, capped by the file's remaining
// size when known) when the free space falls below one page. In
// skip-NULs mode an all-zero read seeks over the hole with SEEK_DATA,
// counting the skipped bytes as zero-width lines.
func (s *Scanner) fillbuf(save int, st os.FileInfo) error {
	savedOffset := s.bufLim - save
	var readOff int

	if s.pagesize <= len(s.buf)-wordSize-s.bufLim {
		readOff = s.bufLim
		s.bufBeg = s.bufLim - save
	} else {
		minsize := save + s.pagesize
		newsize := len(s.buf) - s.pagesize - wordSize
		for newsize < minsize {
			newsize *= 2
		}
		// Try not to over-allocate past what the file can still
		// deliver, unless we have already read beyond the recorded
		// size (the file may be growing).
		if usableSize(st) {
			toRead := st.Size() - s.bufOffset
			maxsize := int64(save) + toRead
			if 0 <= toRead && int64(minsize) <= maxsize && maxsize < int64(newsize) {
				newsize = int(maxsize)
			}
		}
		newalloc := newsize + s.pagesize + wordSize
		newbuf := s.buf
		if len(s.buf) < newalloc {
			newbuf = make([]byte, newalloc)
		}
		readOff = alignTo(1+save, s.pagesize)
		s.bufBeg = readOff - save
		copy(newbuf[s.bufBeg:readOff], s.buf[savedOffset:savedOffset+save])
		newbuf[s.bufBeg-1] = s.opts.EOL
		s.buf = newbuf
	}

	readsize := len(s.buf) - wordSize - readOff
	readsize -= readsize % s.pagesize

	var fill int
	var readErr error
	for {
		n, err := s.desc.Read(s.buf[readOff : readOff+readsize])
		fill = n
		if err != nil && !errors.Is(err, io.EOF) && n == 0 {
			readErr = err
			fill = 0
		}
		s.bufOffset += int64(fill)

		if fill == 0 || !s.skipNuls || !textutil.AllZeros(s.buf[readOff:readOff+fill]) {
			break
		}
		// Each zero byte counts as a zero-width line so -n stays
		// accurate across sparse regions.
		s.totalnl += int64(fill)
		if !s.seekDataFailed {
			s.seekData(st)
		}
	}

	s.bufLim = readOff + fill
	for i := 0; i < wordSize; i++ {
		s.buf[s.bufLim+i] = 0
	}
	return readErr
}

// grepbuf scans [beg, lim), which ends on a line boundary, invoking the
// matcher repeatedly and printing selected blocks (or the gaps between
// them under -v). It returns the number of selected lines.
func (s *Scanner) grepbuf(beg, lim int) int64 {
	outleft0 := s.outleft
	for p := beg; p < lim; {
		off, mlen := s.m.Execute(s.buf[p:lim], -1)
		var b, endp int
		if off == matcher.NoMatch {
			if !s.opts.Invert {
				break
			}
			b, endp = lim, lim
		} else {
			b = p + off
			endp = b + mlen
		}
		// Never match the empty line past the final newline.
		if !s.opts.Invert && b == lim {
			break
		}
		if !s.opts.Invert || p < b {
			prbeg, prend := b, endp
			if s.opts.Invert {
				prbeg, prend = p, b
			}
			s.prtext(prbeg, prend)
			if s.outleft == 0 || s.doneOnMatch {
				break
			}
		}
		p = endp
	}
	return outleft0 - s.outleft
}

// prpending flushes trailing-context lines up to lim. A pending line
// that would itself match once the -m budget is exhausted truncates the
// rest of the pending run instead of printing it.
func (s *Scanner) prpending(lim int) {
	if s.lastout < 0 {
		s.lastout = s.bufBeg
	}
	for s.pending > 0 && s.lastout < lim {
		nl := bytes.IndexByte(s.buf[s.lastout:lim], s.opts.EOL)
		if nl < 0 {
			nl = lim - s.lastout - 1
		}
		end := s.lastout + nl + 1
		s.pending--
		off, _ := s.m.Execute(s.buf[s.lastout:end], -1)
		noMatch := off == matcher.NoMatch
		if s.outleft != 0 || noMatch == !s.opts.Invert {
			s.prline(s.lastout, end, sepRejected)
		} else {
			s.pending = 0
		}
	}
}

// prtext outputs the block [beg, lim): trailing context owed from the
// previous block, leading context, the group separator when the block is
// not adjacent to prior output, then the selected line or lines.
func (s *Scanner) prtext(beg, lim int) {
	eol := s.opts.EOL
	if !s.outQuiet && s.pending > 0 {
		s.prpending(beg)
	}

	p := beg
	if !s.outQuiet {
		bp := s.lastout
		if bp < 0 {
			bp = s.bufBeg
		}
		for i := int64(0); i < s.opts.OutBefore; i++ {
			if p > bp {
				p--
				for s.buf[p-1] != eol {
					p--
				}
			}
		}

		if (s.opts.OutBefore >= 0 || s.opts.OutAfter >= 0) && s.usedGroupSep &&
			p != s.lastout && s.opts.GroupSeparator != "" {
			se := s.colorCap(func(c *ColorScheme) string { return c.Separator })
			s.sgrStart(se)
			s.w.writeString(s.opts.GroupSeparator)
			s.sgrEnd(se)
			s.w.writeByte('\n')
		}

		for p < beg {
			nl := textutil.LineEnd(s.buf, p, eol)
			s.prline(p, nl, sepRejected)
			p = nl
		}
	}

	var n int64
	if s.opts.Invert {
		for n = 0; p < lim && n < s.outleft; n++ {
			nl := textutil.LineEnd(s.buf, p, eol)
			if !s.outQuiet {
				s.prline(p, nl, sepSelected)
			}
			p = nl
		}
	} else {
		if !s.outQuiet {
			s.prline(beg, lim, sepSelected)
		}
		n = 1
		p = lim
	}

	s.afterLastMatch = s.bufOffset - int64(s.bufLim-p)
	if s.outQuiet {
		s.pending = 0
	} else if s.opts.OutAfter > 0 {
		s.pending = s.opts.OutAfter
	} else {
		s.pending = 0
	}
	s.usedGroupSep = true
	s.outleft -= n
}

// Grep scans one open file, printing selected lines to out. name is the
// display name (the label for stdin) and showName enables the file-name
// prefix. It returns the number of selected lines; the error reports
// open/read failures the caller treats as suppressible.
func (s *Scanner) Grep(f *os.File, st os.FileInfo, name string, showName bool, out io.Writer) (int64, error) {
	s.w = &errWriter{w: out}
	s.name = name
	s.outFile = showName

	if err := s.reset(f, st); err != nil {
		return 0, err
	}
	eol := s.opts.EOL

	s.totalcc = 0
	s.lastout = -1
	s.totalnl = 0
	s.outleft = s.opts.MaxCount
	s.afterLastMatch = 0
	s.pending = 0
	s.skipNuls = s.opts.SkipEmptyLines && eol == 0
	s.encodingErrorOutput = false
	s.seekDataFailed = false
	s.doneOnMatch = s.opts.DoneOnMatch
	s.outQuiet = s.opts.OutQuiet

	// The line count when NULs were first deduced; -1 if never.
	nlinesFirstNull := int64(-1)
	var nulZapper byte

	var nlines int64
	residue := 0
	save := 0

	if err := s.fillbuf(save, st); err != nil {
		return 0, err
	}

	for firsttime := true; ; firsttime = false {
		if nlinesFirstNull < 0 && eol != 0 && s.opts.Binary != BinaryText &&
			(bytes.IndexByte(s.buf[s.bufBeg:s.bufLim], 0) >= 0 ||
				(firsttime && s.fileMustHaveNulls(int64(s.bufLim-s.bufBeg), f, st))) {
			if s.opts.Binary == BinaryWithoutMatch {
				return 0, nil
			}
			if !s.opts.CountMatches {
				s.doneOnMatch = true
				s.outQuiet = true
			}
			nlinesFirstNull = nlines
			nulZapper = eol
			s.skipNuls = s.opts.SkipEmptyLines
		}

		s.lastnl = s.bufBeg
		if s.lastout >= 0 {
			s.lastout = s.bufBeg
		}

		beg := s.bufBeg + save
		if beg == s.bufLim {
			break
		}

		textutil.ZapNuls(s.buf[beg:s.bufLim], nulZapper)

		// Split off the residue: the incomplete last line stays behind
		// for the next refill.
		var lim int
		if i := bytes.LastIndexByte(s.buf[beg:s.bufLim], eol); i >= 0 {
			lim = beg + i + 1
		} else {
			lim = beg
		}
		if lim == beg {
			lim = beg - residue
		}
		beg -= residue
		residue = s.bufLim - lim

		if beg < lim {
			if s.outleft != 0 {
				nlines += s.grepbuf(beg, lim)
			}
			if s.pending != 0 {
				s.prpending(lim)
			}
			if (s.outleft == 0 && s.pending == 0) ||
				(s.doneOnMatch && max64(0, nlinesFirstNull) < nlines) {
				return s.finishGrep(nlines, nlinesFirstNull), nil
			}
		}

		// Keep the last OutBefore lines as leading context for a match
		// at the start of the next window.
		beg = lim
		for i := int64(0); i < s.opts.OutBefore && beg > s.bufBeg && beg != s.lastout; i++ {
			beg--
			for s.buf[beg-1] != eol {
				beg--
			}
		}
		if beg != s.lastout {
			s.lastout = -1
		}

		save = residue + lim - beg
		if s.opts.ByteOffset {
			s.totalcc += int64(s.bufLim - s.bufBeg - save)
		}
		if s.opts.LineNumber {
			s.nlscan(beg)
		}
		if err := s.fillbuf(save, st); err != nil {
			return s.finishGrep(nlines, nlinesFirstNull), err
		}
	}

	if residue != 0 {
		s.buf[s.bufLim] = eol
		s.bufLim++
		if s.outleft != 0 {
			nlines += s.grepbuf(s.bufBeg+save-residue, s.bufLim)
		}
		if s.pending != 0 {
			s.prpending(s.bufLim)
		}
	}
	return s.finishGrep(nlines, nlinesFirstNull), nil
}

// finishGrep restores the quiet flags and, when binary content was seen,
// emits the one-line synopsis in place of the suppressed bodies.
func (s *Scanner) finishGrep(nlines, nlinesFirstNull int64) int64 {
	s.doneOnMatch = s.opts.DoneOnMatch
	s.outQuiet = s.opts.OutQuiet
	if !s.outQuiet && (s.encodingErrorOutput ||
		(0 <= nlinesFirstNull && nlinesFirstNull < nlines)) {
		s.w.writeString("Binary file " + s.name + " matches\n")
		if s.opts.LineBuffered {
			s.w.flush()
		}
	}
	return nlines
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
