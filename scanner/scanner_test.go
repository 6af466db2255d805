package scanner

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coregx/lgrep/matcher"
)

func newMatcher(t *testing.T, pattern string, mopts matcher.Options) *matcher.Matcher {
	t.Helper()
	// Tests that want null-data mode build the matcher themselves.
	if mopts.EOL == 0 {
		mopts.EOL = '\n'
	}
	var pats []matcher.Pattern
	for _, line := range strings.Split(pattern, "\n") {
		pats = append(pats, matcher.Pattern{Text: line})
	}
	m, err := matcher.Compile(pats, mopts)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", pattern, err)
	}
	return m
}

func writeTemp(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// scan greps content with the given pattern and options, returning the
// produced output and the selected line count.
func scan(t *testing.T, pattern string, mopts matcher.Options, opts Options, content string) (string, int64) {
	t.Helper()
	if opts.EOL == 0 && mopts.EOL != 0 {
		opts.EOL = mopts.EOL
	}
	if opts.EOL == 0 {
		opts.EOL = '\n'
	}
	if mopts.EOL == 0 {
		mopts.EOL = opts.EOL
	}
	if opts.MaxCount == 0 {
		opts.MaxCount = 1 << 60
	}
	if opts.OutBefore == 0 {
		opts.OutBefore = -1
	}
	if opts.OutAfter == 0 {
		opts.OutAfter = -1
	}
	m := newMatcher(t, pattern, mopts)
	opts.SkipEmptyLines = m.MatchesEmptyLine() == opts.Invert

	f := writeTemp(t, []byte(content))
	st, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	sc := New(m, opts)
	n, err := sc.Grep(f, st, "input", false, &out)
	if err != nil {
		t.Fatalf("Grep failed: %v", err)
	}
	return out.String(), n
}

func TestGrepSelectsMatchingLines(t *testing.T) {
	out, n := scan(t, "a", matcher.Options{}, Options{}, "alpha\nbeta\ngamma\n")
	if out != "alpha\nbeta\ngamma\n" || n != 3 {
		t.Fatalf("got (%q, %d)", out, n)
	}

	out, n = scan(t, "mm", matcher.Options{}, Options{}, "alpha\nbeta\ngamma\n")
	if out != "gamma\n" || n != 1 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepInvert(t *testing.T) {
	out, n := scan(t, "a", matcher.Options{}, Options{Invert: true}, "alpha\nbeta\ngamma\n")
	if out != "" || n != 0 {
		t.Fatalf("got (%q, %d)", out, n)
	}
	out, n = scan(t, "alpha", matcher.Options{}, Options{Invert: true}, "alpha\nbeta\ngamma\n")
	if out != "beta\ngamma\n" || n != 2 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepLineNumbers(t *testing.T) {
	out, _ := scan(t, "a", matcher.Options{}, Options{LineNumber: true}, "alpha\nbeta\ngamma\n")
	want := "1:alpha\n2:beta\n3:gamma\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	out, _ = scan(t, "gamma", matcher.Options{}, Options{LineNumber: true}, "alpha\nbeta\ngamma\n")
	if out != "3:gamma\n" {
		t.Fatalf("got %q, want %q", out, "3:gamma\n")
	}
}

func TestGrepByteOffset(t *testing.T) {
	out, _ := scan(t, "beta", matcher.Options{}, Options{ByteOffset: true}, "alpha\nbeta\n")
	if out != "6:beta\n" {
		t.Fatalf("got %q, want %q", out, "6:beta\n")
	}
}

func TestGrepUnterminatedLastLine(t *testing.T) {
	// The incomplete final line is still treated as a line: it is
	// matched and emitted with a supplied terminator.
	out, n := scan(t, "tail", matcher.Options{}, Options{}, "head\ntail")
	if out != "tail\n" || n != 1 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepEmptyFile(t *testing.T) {
	out, n := scan(t, "x", matcher.Options{}, Options{}, "")
	if out != "" || n != 0 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepLongLineGrowsBuffer(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	content := long + "needle" + long + "\nshort\n"
	out, n := scan(t, "needle", matcher.Options{}, Options{}, content)
	if n != 1 {
		t.Fatalf("selected %d lines, want 1", n)
	}
	if !strings.Contains(out, "needle") || strings.Contains(out, "short") {
		t.Fatal("wrong line selected")
	}
}

func TestGrepMaxCount(t *testing.T) {
	out, n := scan(t, "a", matcher.Options{}, Options{MaxCount: 2}, "a1\na2\na3\n")
	if out != "a1\na2\n" || n != 2 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepContext(t *testing.T) {
	content := "l1\nl2\nmatch\nl4\nl5\n"
	out, _ := scan(t, "match", matcher.Options{},
		Options{OutBefore: 1, OutAfter: 1, GroupSeparator: "--"}, content)
	want := "l2\nmatch\nl4\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestGrepContextGroupSeparator(t *testing.T) {
	content := "m1\na\nb\nc\nm2\n"
	out, _ := scan(t, "m", matcher.Options{},
		Options{OutBefore: -1, OutAfter: 1, GroupSeparator: "--"}, content)
	want := "m1\na\n--\nm2\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestGrepOnlyMatching(t *testing.T) {
	out, n := scan(t, "a.", matcher.Options{Dialect: matcher.DialectExtended},
		Options{OnlyMatching: true}, "banana apple\n")
	want := "an\nan\na \nap\n"
	if out != want || n != 1 {
		t.Fatalf("got (%q, %d), want (%q, 1)", out, n, want)
	}
}

func TestGrepBinarySynopsis(t *testing.T) {
	content := "match\n\x00junk\n"
	out, n := scan(t, "match", matcher.Options{}, Options{}, content)
	if out != "Binary file input matches\n" {
		t.Fatalf("got %q", out)
	}
	if n == 0 {
		t.Fatal("binary file match not counted")
	}
}

func TestGrepBinaryWithoutMatch(t *testing.T) {
	content := "match\n\x00junk\n"
	out, n := scan(t, "match", matcher.Options{}, Options{Binary: BinaryWithoutMatch}, content)
	if out != "" || n != 0 {
		t.Fatalf("got (%q, %d), want no output", out, n)
	}
}

func TestGrepBinaryAsText(t *testing.T) {
	content := "match\n\x00junk\n"
	out, n := scan(t, "match", matcher.Options{}, Options{Binary: BinaryText}, content)
	if out != "match\n" || n != 1 {
		t.Fatalf("got (%q, %d)", out, n)
	}
}

func TestGrepNullData(t *testing.T) {
	mopts := matcher.Options{Dialect: matcher.DialectExtended}
	var pats []matcher.Pattern
	pats = append(pats, matcher.Pattern{Text: "b"})
	m, err := matcher.Compile(pats, mopts) // zero EOL: null data
	if err != nil {
		t.Fatal(err)
	}
	opts := Options{EOL: 0, MaxCount: 1 << 60, OutBefore: -1, OutAfter: -1}
	opts.SkipEmptyLines = m.MatchesEmptyLine()

	f := writeTemp(t, []byte("ab\x00cd\x00"))
	st, _ := f.Stat()
	var out bytes.Buffer
	sc := New(m, opts)
	n, err := sc.Grep(f, st, "input", false, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "ab\x00" || n != 1 {
		t.Fatalf("got (%q, %d)", out.String(), n)
	}
}

func TestGrepFilenamePrefix(t *testing.T) {
	m := newMatcher(t, "beta", matcher.Options{})
	opts := Options{EOL: '\n', MaxCount: 1 << 60, OutBefore: -1, OutAfter: -1}
	f := writeTemp(t, []byte("alpha\nbeta\n"))
	st, _ := f.Stat()
	var out bytes.Buffer
	sc := New(m, opts)
	if _, err := sc.Grep(f, st, "data.txt", true, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "data.txt:beta\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestGrepColorMarkup(t *testing.T) {
	m := newMatcher(t, "beta", matcher.Options{})
	colors := DefaultColors()
	opts := Options{
		EOL: '\n', MaxCount: 1 << 60, OutBefore: -1, OutAfter: -1,
		Colors: colors,
	}
	f := writeTemp(t, []byte("xbetay\n"))
	st, _ := f.Stat()
	var out bytes.Buffer
	sc := New(m, opts)
	if _, err := sc.Grep(f, st, "input", false, &out); err != nil {
		t.Fatal(err)
	}
	want := "x\x1b[01;31m\x1b[Kbeta\x1b[m\x1b[Ky\n"
	if out.String() != want {
		t.Fatalf("got %q, want %q", out.String(), want)
	}
}

func TestParseColors(t *testing.T) {
	c := DefaultColors()
	ParseColors("ms=01;32:fn=33:ne:rv:bogus=zz;;", c)
	if c.SelectedMatch != "01;32" {
		t.Errorf("SelectedMatch = %q", c.SelectedMatch)
	}
	if c.Filename != "33" {
		t.Errorf("Filename = %q", c.Filename)
	}
	if !c.NoEraseLine || !c.Reverse {
		t.Error("ne/rv capabilities not applied")
	}
	if c.ContextMatch != "01;31" {
		t.Errorf("ContextMatch = %q, want untouched default", c.ContextMatch)
	}
}
