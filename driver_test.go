package lgrep

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coregx/lgrep/matcher"
	"github.com/coregx/lgrep/scanner"
)

func baseConfig(pattern string) *Config {
	var pats []matcher.Pattern
	for _, line := range strings.Split(pattern, "\n") {
		pats = append(pats, matcher.Pattern{Text: line})
	}
	return &Config{
		Patterns:  pats,
		Dialect:   matcher.DialectExtended,
		MaxCount:  -1,
		OutBefore: -1,
		OutAfter:  -1,
	}
}

func runGrep(t *testing.T, cfg *Config, paths ...string) (string, string, int) {
	t.Helper()
	var out, errb bytes.Buffer
	code := Run(cfg, paths, &out, &errb)
	return out.String(), errb.String(), code
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunBasicScenarios(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha\nbeta\ngamma\n")

	t.Run("plain match", func(t *testing.T) {
		out, _, code := runGrep(t, baseConfig("a"), a)
		require.Equal(t, "alpha\nbeta\ngamma\n", out)
		require.Equal(t, ExitMatch, code)
	})

	t.Run("selective match", func(t *testing.T) {
		cfg := baseConfig("^a|mm")
		out, _, code := runGrep(t, cfg, a)
		require.Equal(t, "alpha\ngamma\n", out)
		require.Equal(t, ExitMatch, code)
	})

	t.Run("line numbers", func(t *testing.T) {
		cfg := baseConfig("^a|mm")
		cfg.LineNumber = true
		out, _, _ := runGrep(t, cfg, a)
		require.Equal(t, "1:alpha\n3:gamma\n", out)
	})

	t.Run("count", func(t *testing.T) {
		cfg := baseConfig("^a|mm")
		cfg.CountMatches = true
		out, _, code := runGrep(t, cfg, a)
		require.Equal(t, "2\n", out)
		require.Equal(t, ExitMatch, code)
	})

	t.Run("invert", func(t *testing.T) {
		cfg := baseConfig("^a|mm")
		cfg.Invert = true
		out, _, _ := runGrep(t, cfg, a)
		require.Equal(t, "beta\n", out)
	})

	t.Run("no match exits 1", func(t *testing.T) {
		out, _, code := runGrep(t, baseConfig("zebra"), a)
		require.Empty(t, out)
		require.Equal(t, ExitNoMatch, code)
	})

	t.Run("missing file exits 2", func(t *testing.T) {
		out, errOut, code := runGrep(t, baseConfig("a"), filepath.Join(dir, "nope"))
		require.Empty(t, out)
		require.Contains(t, errOut, "nope")
		require.Equal(t, ExitTrouble, code)
	})
}

func TestRunWordMatch(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "foo bar\nfoobar\n")
	cfg := baseConfig("foo")
	cfg.WordMatch = true
	out, _, _ := runGrep(t, cfg, a)
	require.Equal(t, "foo bar\n", out)
}

func TestRunOnlyMatching(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "banana apple\n")
	cfg := baseConfig("a.")
	cfg.OnlyMatching = true
	out, _, _ := runGrep(t, cfg, a)
	require.Equal(t, "an\nan\na \nap\n", out)
}

func TestRunMultipleFilesShowNames(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hit\n")
	b := writeFile(t, dir, "b.txt", "miss\n")
	out, _, _ := runGrep(t, baseConfig("hit"), a, b)
	require.Equal(t, a+":hit\n", out)

	cfg := baseConfig("hit")
	cfg.NoFilename = true
	out, _, _ = runGrep(t, cfg, a, b)
	require.Equal(t, "hit\n", out)
}

func TestRunListModes(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hit\n")
	b := writeFile(t, dir, "b.txt", "miss\n")

	cfg := baseConfig("hit")
	cfg.ListFiles = ListMatching
	out, _, code := runGrep(t, cfg, a, b)
	require.Equal(t, a+"\n", out)
	require.Equal(t, ExitMatch, code)

	cfg = baseConfig("hit")
	cfg.ListFiles = ListNonmatching
	out, _, _ = runGrep(t, cfg, a, b)
	require.Equal(t, b+"\n", out)

	// An empty file has no selected lines, so -L lists it as well.
	cfg = baseConfig("hit")
	cfg.ListFiles = ListNonmatching
	empty := writeFile(t, dir, "empty.txt", "")
	out, _, _ = runGrep(t, cfg, a, b, empty)
	require.Equal(t, b+"\n"+empty+"\n", out)
}

func TestRunQuiet(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hit\n")
	cfg := baseConfig("hit")
	cfg.Quiet = true
	out, _, code := runGrep(t, cfg, a)
	require.Empty(t, out)
	require.Equal(t, ExitMatch, code)

	cfg = baseConfig("nope")
	cfg.Quiet = true
	_, _, code = runGrep(t, cfg, a)
	require.Equal(t, ExitNoMatch, code)
}

func TestRunRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d/x.txt", "hit\n")
	writeFile(t, dir, "d/y.txt", "miss\n")
	root := filepath.Join(dir, "d")

	cfg := baseConfig("hit")
	cfg.Directories = DirRecurse
	out, _, code := runGrep(t, cfg, root)
	require.Equal(t, root+"/x.txt:hit\n", out)
	require.Equal(t, ExitMatch, code)
}

func TestRunRecursiveParallelIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 30; i++ {
		sub := "d"
		if i%4 == 0 {
			sub = filepath.Join("d", "nested")
		}
		content := "miss\n"
		if i%3 == 0 {
			content = "hit line\nmiss\nanother hit\n"
		}
		writeFile(t, dir, filepath.Join(sub, "f"+string(rune('a'+i%26))+".txt"), content)
	}
	root := filepath.Join(dir, "d")

	serial := baseConfig("hit")
	serial.Directories = DirRecurse
	serialOut, _, serialCode := runGrep(t, serial, root)
	require.NotEmpty(t, serialOut)

	for _, threads := range []int{2, 4, 8} {
		par := baseConfig("hit")
		par.Directories = DirRecurse
		par.Threads = threads
		out, _, code := runGrep(t, par, root)
		require.Equal(t, serialOut, out, "threads=%d", threads)
		require.Equal(t, serialCode, code)
	}
}

func TestRunRecursiveParallelCount(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d/x.txt", "hit\nhit\n")
	writeFile(t, dir, "d/y.txt", "miss\n")
	root := filepath.Join(dir, "d")

	cfg := baseConfig("hit")
	cfg.Directories = DirRecurse
	cfg.CountMatches = true
	serialOut, _, _ := runGrep(t, cfg, root)

	cfg = baseConfig("hit")
	cfg.Directories = DirRecurse
	cfg.CountMatches = true
	cfg.Threads = 4
	parOut, _, _ := runGrep(t, cfg, root)
	require.Equal(t, serialOut, parOut)
	require.Equal(t, root+"/x.txt:2\n"+root+"/y.txt:0\n", parOut)
}

func TestRunContextDowngradesParallel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d/x.txt", "a\nhit\nb\n")
	root := filepath.Join(dir, "d")

	cfg := baseConfig("hit")
	cfg.Directories = DirRecurse
	cfg.Threads = 4
	cfg.OutBefore, cfg.OutAfter = 1, 1
	out, _, _ := runGrep(t, cfg, root)
	require.Equal(t, root+"/x.txt-a\n"+root+"/x.txt:hit\n"+root+"/x.txt-b\n", out)
}

func TestRunExcludePredicate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "d/keep.txt", "hit\n")
	writeFile(t, dir, "d/skip.log", "hit\n")
	root := filepath.Join(dir, "d")

	cfg := baseConfig("hit")
	cfg.Directories = DirRecurse
	cfg.Skip = func(name string, isDir bool) bool {
		return !isDir && strings.HasSuffix(name, ".log")
	}
	out, _, _ := runGrep(t, cfg, root)
	require.Equal(t, root+"/keep.txt:hit\n", out)
}

func TestRunMaxCountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a1\na2\n")

	unlimited, _, _ := runGrep(t, baseConfig("a"), a)
	cfg := baseConfig("a")
	cfg.MaxCount = 5
	capped, _, _ := runGrep(t, cfg, a)
	require.Equal(t, unlimited, capped, "-m K with fewer than K lines is a no-op")
}

func TestRunFixedVersusEscapedRegexp(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "price is $1.50\nprice is x1y50\n")

	fixed := baseConfig("$1.50")
	fixed.Dialect = matcher.DialectFixed
	fixedOut, _, _ := runGrep(t, fixed, a)

	escaped := baseConfig(`\$1\.50`)
	escapedOut, _, _ := runGrep(t, escaped, a)
	require.Equal(t, fixedOut, escapedOut)
	require.Equal(t, "price is $1.50\n", fixedOut)
}

func TestRunNullSeparators(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "hit\n")
	cfg := baseConfig("hit")
	cfg.WithFilename = true
	cfg.NullSep = true
	out, _, _ := runGrep(t, cfg, a)
	require.Equal(t, a+"\x00hit\n", out)
}

func TestRunBinaryPolicies(t *testing.T) {
	dir := t.TempDir()
	bin := writeFile(t, dir, "bin.dat", "hit\n\x00rest\n")

	out, _, _ := runGrep(t, baseConfig("hit"), bin)
	require.Equal(t, "Binary file "+bin+" matches\n", out)

	cfg := baseConfig("hit")
	cfg.Binary = scanner.BinaryText
	out, _, _ = runGrep(t, cfg, bin)
	require.Equal(t, "hit\n", out)

	cfg = baseConfig("hit")
	cfg.Binary = scanner.BinaryWithoutMatch
	out, _, code := runGrep(t, cfg, bin)
	require.Empty(t, out)
	require.Equal(t, ExitNoMatch, code)
}

func TestRunCountSumsMatchSelection(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a\nb\na\n")
	b := writeFile(t, dir, "b.txt", "a\n")

	plain, _, _ := runGrep(t, baseConfig("a"), a, b)
	lines := strings.Count(plain, "\n")

	cfg := baseConfig("a")
	cfg.CountMatches = true
	counts, _, _ := runGrep(t, cfg, a, b)
	require.Equal(t, a+":2\n"+b+":1\n", counts)
	require.Equal(t, 3, lines)
}
