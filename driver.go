package lgrep

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/coregx/lgrep/matcher"
	"github.com/coregx/lgrep/parallel"
	"github.com/coregx/lgrep/scanner"
	"github.com/coregx/lgrep/walker"
)

// Exit statuses: 0 when any line was selected, 1 when none, 2 on error.
const (
	ExitMatch   = 0
	ExitNoMatch = 1
	ExitTrouble = 2
)

type driver struct {
	cfg   *Config
	m     *matcher.Matcher
	sopts scanner.Options
	sc    *scanner.Scanner

	out    *bufio.Writer
	stderr io.Writer

	outInfo os.FileInfo // stat of stdout when it is a regular file

	colors       *scanner.ColorScheme // nil when color is off
	countMatches bool
	listFiles    ListMode
	doneOnMatch  bool
	outQuiet     bool
	maxCount     int64
	showName     bool

	// diagMu guards errseen, werr, and stderr interleaving; parallel
	// workers report suppressible errors concurrently.
	diagMu  sync.Mutex
	errseen bool
	werr    error
	matched bool
}

// Run executes one invocation: it compiles the pattern set, routes every
// path argument to the serial or parallel pipeline, and returns the
// process exit status.
func Run(cfg *Config, paths []string, stdout, stderr io.Writer) int {
	d := &driver{cfg: cfg, stderr: stderr}

	colorOn := cfg.Color == ColorAlways
	if cfg.Color == ColorAuto {
		if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			colorOn = true
		}
	}
	if colorOn {
		d.colors = cfg.Colors
		if d.colors == nil {
			d.colors = scanner.DefaultColors()
		}
	}

	m, err := matcher.Compile(cfg.Patterns, cfg.matcherOptions())
	if err != nil {
		fmt.Fprintf(stderr, "lgrep: %v\n", err)
		return ExitTrouble
	}
	d.m = m

	// -q overrides -l and -L, which in turn override -c.
	d.listFiles = cfg.ListFiles
	d.countMatches = cfg.CountMatches
	if cfg.Quiet {
		d.listFiles = ListNone
	}
	if cfg.Quiet || d.listFiles != ListNone {
		d.countMatches = false
		d.doneOnMatch = true
	}
	d.outQuiet = d.countMatches || d.doneOnMatch

	d.maxCount = cfg.MaxCount
	if d.maxCount < 0 {
		d.maxCount = math.MaxInt64
	}

	groupSep := "--"
	if cfg.GroupSeparator != "" {
		groupSep = cfg.GroupSeparator
	}
	if cfg.NoGroupSeparator {
		groupSep = ""
	}

	eol := byte('\n')
	if cfg.NullData {
		eol = 0
	}
	d.sopts = scanner.Options{
		Invert:         cfg.Invert,
		OutBefore:      cfg.OutBefore,
		OutAfter:       cfg.OutAfter,
		MaxCount:       d.maxCount,
		LineNumber:     cfg.LineNumber,
		ByteOffset:     cfg.ByteOffset,
		OnlyMatching:   cfg.OnlyMatching,
		OutQuiet:       d.outQuiet,
		DoneOnMatch:    d.doneOnMatch,
		CountMatches:   d.countMatches,
		Binary:         cfg.Binary,
		EOL:            eol,
		NullSep:        cfg.NullSep,
		AlignTabs:      cfg.AlignTabs,
		LineBuffered:   cfg.LineBuffered,
		GroupSeparator: groupSep,
		Colors:         d.colors,
		SkipEmptyLines: m.MatchesEmptyLine() == cfg.Invert,
	}
	d.sc = scanner.New(m, d.sopts)

	d.out = bufio.NewWriter(stdout)
	if f, ok := stdout.(*os.File); ok && !cfg.Quiet {
		if st, serr := f.Stat(); serr == nil && st.Mode().IsRegular() {
			d.outInfo = st
		}
	}

	if len(paths) == 0 {
		paths = []string{"-"}
	}
	d.showName = (len(paths) > 1 && !cfg.NoFilename) || cfg.WithFilename

	for _, p := range paths {
		d.grepArg(p)
		if cfg.Quiet && d.matched {
			break
		}
	}

	if err := d.out.Flush(); err != nil && d.werr == nil {
		d.werr = err
	}
	if cfg.Quiet && d.matched {
		return ExitMatch
	}
	if d.werr != nil {
		fmt.Fprintf(stderr, "lgrep: write error: %v\n", d.werr)
		return ExitTrouble
	}
	if d.errseen {
		return ExitTrouble
	}
	if d.matched {
		return ExitMatch
	}
	return ExitNoMatch
}

// suppressible reports a per-file error to stderr unless -s, and records
// that an error was seen for the final exit status.
func (d *driver) suppressible(name string, err error) {
	d.diagMu.Lock()
	defer d.diagMu.Unlock()
	if !d.cfg.SuppressErrors {
		fmt.Fprintf(d.stderr, "lgrep: %s: %v\n", name, unwrapPathError(err))
	}
	d.errseen = true
}

func (d *driver) warn(name, msg string) {
	d.diagMu.Lock()
	defer d.diagMu.Unlock()
	if !d.cfg.SuppressErrors {
		fmt.Fprintf(d.stderr, "lgrep: warning: %s: %s\n", name, msg)
	}
}

func unwrapPathError(err error) error {
	var pe *os.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// grepArg routes one command-line path: stdin, a file, or a tree.
func (d *driver) grepArg(path string) {
	if path == "-" {
		d.grepStdin()
		return
	}
	f, err := os.Open(path)
	if err != nil {
		d.suppressible(path, err)
		return
	}
	st, err := f.Stat()
	if err != nil {
		d.suppressible(path, err)
		f.Close()
		return
	}
	if d.cfg.Skip != nil && d.cfg.Skip(path, st.IsDir()) {
		f.Close()
		return
	}
	if st.IsDir() {
		switch d.cfg.Directories {
		case DirRecurse:
			f.Close()
			d.grepTree(path)
			return
		case DirSkip:
			f.Close()
			return
		}
		// DirRead falls through; the read will fail and be reported.
	}
	if d.skipDevices(true) && isDevice(st) {
		f.Close()
		return
	}
	if d.selfReference(st, path) {
		f.Close()
		return
	}
	matched, _ := d.grepFile(d.sc, f, st, path, d.showName, d.out)
	if matched {
		d.matched = true
	}
	f.Close()
}

func (d *driver) grepStdin() {
	f := os.Stdin
	st, _ := f.Stat()
	label := d.cfg.Label
	if label == "" {
		label = "(standard input)"
	}
	matched, _ := d.grepFile(d.sc, f, st, label, d.showName, d.out)
	if matched {
		d.matched = true
	}

	// Leave stdin positioned just past the last match when -m cut the
	// scan short, so a following reader resumes there.
	required := d.sc.BufOffset()
	if d.sc.OutLeft() == 0 {
		required = d.sc.AfterLastMatch()
	}
	if required != d.sc.BufOffset() && st != nil && st.Mode().IsRegular() {
		if _, err := f.Seek(required, io.SeekStart); err != nil {
			d.suppressible(label, err)
		}
	}
}

// grepTree searches a directory tree, choosing the parallel coordinator
// when the configuration allows it and falling back to the serial walk
// otherwise.
func (d *driver) grepTree(root string) {
	wopts := walker.Options{FollowSymlinks: d.cfg.Follow, Skip: d.cfg.Skip}

	if d.parallelOK() {
		coord := &parallel.Coordinator{Threads: d.cfg.Threads, Out: d.out}
		matched, ok := coord.Run(root, wopts, func(int) parallel.FileFunc {
			wm, err := d.m.Clone()
			if err != nil {
				wm = d.m
			}
			sc := scanner.New(wm, d.sopts)
			return func(e walker.Entry, out io.Writer) (bool, bool) {
				return d.processEntry(sc, e, out)
			}
		})
		if matched {
			d.matched = true
		}
		if !ok {
			d.diagMu.Lock()
			d.errseen = true
			d.diagMu.Unlock()
		}
		return
	}

	walk := walker.New(root, wopts)
	for {
		e, more := walk.Next()
		if !more {
			break
		}
		_, matched := d.processEntry(d.sc, e, d.out)
		if matched {
			d.matched = true
		}
		if d.cfg.Quiet && d.matched {
			return
		}
	}
}

// parallelOK reports whether this invocation may use the parallel
// coordinator: context, word matching, include/exclude, line buffering,
// and quiet mode silently select the serial pipeline.
func (d *driver) parallelOK() bool {
	return d.cfg.Threads >= 2 &&
		d.cfg.OutBefore < 0 && d.cfg.OutAfter < 0 &&
		!d.cfg.LineBuffered &&
		!d.cfg.WordMatch &&
		d.cfg.Skip == nil &&
		!d.cfg.Quiet
}

// processEntry handles one enumerated entry: report failures and cycles,
// open and scan files, and emit the per-file summaries. It is shared by
// the serial walk and the parallel workers; out is either the real sink
// or an output bucket.
func (d *driver) processEntry(sc *scanner.Scanner, e walker.Entry, out io.Writer) (ok, matched bool) {
	switch e.Kind {
	case walker.KindError:
		d.suppressible(e.Path, e.Err)
		return false, false
	case walker.KindCycle:
		d.warn(e.Path, "recursive directory loop")
		return true, false
	case walker.KindFile:
		// Continue below.
	default:
		return true, false
	}

	if e.Info != nil && d.skipDevices(false) && isDevice(e.Info) {
		return true, false
	}

	flags := os.O_RDONLY
	if !d.cfg.Follow {
		flags |= unix.O_NOFOLLOW
	}
	f, err := os.OpenFile(e.Path, flags, 0)
	if err != nil {
		if !d.cfg.Follow && openSymlinkError(err) {
			return true, false
		}
		d.suppressible(e.Path, err)
		return false, false
	}
	defer f.Close()

	// Stat again through the descriptor: the entry can change between
	// the directory read and the open.
	st, err := f.Stat()
	if err != nil {
		d.suppressible(e.Path, err)
		return false, false
	}
	if st.IsDir() {
		return true, false
	}
	if d.skipDevices(false) && isDevice(st) {
		return true, false
	}
	if d.selfReference(st, e.Path) {
		return false, false
	}

	return d.grepFile(sc, f, st, e.Path, !d.cfg.NoFilename, out)
}

// grepFile scans one open file and emits the count or list summaries.
func (d *driver) grepFile(sc *scanner.Scanner, f *os.File, st os.FileInfo, name string, showName bool, out io.Writer) (matched, ok bool) {
	ok = true
	count, err := sc.Grep(f, st, name, showName, out)
	if err != nil {
		d.suppressible(name, err)
		ok = false
	}
	if werr := sc.Err(); werr != nil {
		d.diagMu.Lock()
		if d.werr == nil {
			d.werr = werr
		}
		d.diagMu.Unlock()
	}

	if d.countMatches {
		if showName {
			d.printName(out, name)
			if d.cfg.NullSep {
				out.Write([]byte{0})
			} else {
				d.printSep(out, sepSelected)
			}
		}
		io.WriteString(out, strconv.FormatInt(count, 10))
		out.Write([]byte{'\n'})
		d.flushIfLineBuffered(out)
	}

	if (count == 0 && d.listFiles == ListNonmatching) ||
		(count > 0 && d.listFiles == ListMatching) {
		d.printName(out, name)
		if d.cfg.NullSep {
			out.Write([]byte{0})
		} else {
			out.Write([]byte{'\n'})
		}
		d.flushIfLineBuffered(out)
	}

	return count > 0, ok
}

const sepSelected = ':'

// selfReference skips a file that is the program's own output: matching
// lines appended to it would be read back, looping until the disk fills.
func (d *driver) selfReference(st os.FileInfo, name string) bool {
	if d.outInfo == nil || d.outQuiet || d.listFiles != ListNone || d.maxCount <= 1 {
		return false
	}
	if !os.SameFile(d.outInfo, st) {
		return false
	}
	d.diagMu.Lock()
	if !d.cfg.SuppressErrors {
		fmt.Fprintf(d.stderr, "lgrep: input file %q is also the output\n", name)
	}
	d.errseen = true
	d.diagMu.Unlock()
	return true
}

func (d *driver) skipDevices(commandLine bool) bool {
	return d.cfg.Devices == DevSkip ||
		(d.cfg.Devices == DevReadCommandLine && !commandLine)
}

func isDevice(st os.FileInfo) bool {
	return st.Mode()&(os.ModeDevice|os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0
}

// openSymlinkError reports whether err is what open returns for a
// symlink under O_NOFOLLOW; such entries are skipped without diagnosis.
func openSymlinkError(err error) bool {
	return errors.Is(err, unix.ELOOP) || errors.Is(err, unix.EMLINK)
}

func (d *driver) sgrWrap(w io.Writer, params, body string) {
	if d.colors == nil || params == "" {
		io.WriteString(w, body)
		return
	}
	k := "\x1b[K"
	if d.colors.NoEraseLine {
		k = ""
	}
	io.WriteString(w, "\x1b["+params+"m"+k+body+"\x1b[m"+k)
}

func (d *driver) printName(w io.Writer, name string) {
	params := ""
	if d.colors != nil {
		params = d.colors.Filename
	}
	d.sgrWrap(w, params, name)
}

func (d *driver) printSep(w io.Writer, sep byte) {
	params := ""
	if d.colors != nil {
		params = d.colors.Separator
	}
	d.sgrWrap(w, params, string(sep))
}

func (d *driver) flushIfLineBuffered(out io.Writer) {
	if !d.cfg.LineBuffered {
		return
	}
	if f, ok := out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil && d.werr == nil {
			d.werr = err
		}
	}
}
