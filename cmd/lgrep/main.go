// Command lgrep searches files for lines matching regular expressions,
// recursing into directory trees with a pool of parallel workers whose
// output is indistinguishable from a serial run.
package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coregx/lgrep"
	"github.com/coregx/lgrep/matcher"
	"github.com/coregx/lgrep/scanner"
)

type cliFlags struct {
	extended, fixed, basic, perl bool

	regexps      []string
	patternFiles []string

	ignoreCase, invert, word, line bool
	lineNumber, byteOffset         bool
	count                          bool
	filesWith, filesWithout        bool
	withFilename, noFilename       bool
	onlyMatching                   bool
	quiet, noMessages              bool
	recursive, dereference         bool

	after, before, context int64
	maxCount               int64

	devices, directories string
	binaryFiles          string
	textMode, skipBinary bool

	include, exclude, excludeDir []string
	excludeFrom                  []string

	label        string
	nullSep      bool
	nullData     bool
	threads      int
	color        string
	lineBuffered bool
	groupSep     string
	noGroupSep   bool
	initialTab   bool

	// DOS text-mode switches are accepted for compatibility and have
	// no effect on POSIX systems.
	binaryMode, unixByteOffsets bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var fl cliFlags
	fl.after, fl.before, fl.context = -1, -1, -1
	fl.maxCount = -1

	cmd := &cobra.Command{
		Use:           "lgrep [OPTION]... PATTERNS [FILE]...",
		Short:         "print lines that match patterns",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
	}
	bindFlags(cmd.Flags(), &fl)

	var status int
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		status = execute(cmd, &fl, args)
		return nil
	}

	cmd.SetArgs(expandContextShorthand(argv))
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lgrep: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: lgrep [OPTION]... PATTERNS [FILE]...")
		return lgrep.ExitTrouble
	}
	return status
}

func bindFlags(fs *pflag.FlagSet, fl *cliFlags) {
	// -h is --no-filename, so the help flag must be long-only;
	// registering it here keeps cobra from claiming the shorthand.
	fs.Bool("help", false, "display this help text and exit")

	fs.BoolVarP(&fl.extended, "extended-regexp", "E", false, "PATTERNS are extended regular expressions")
	fs.BoolVarP(&fl.fixed, "fixed-strings", "F", false, "PATTERNS are strings")
	fs.BoolVarP(&fl.basic, "basic-regexp", "G", false, "PATTERNS are basic regular expressions")
	fs.BoolVarP(&fl.perl, "perl-regexp", "P", false, "PATTERNS are Perl regular expressions")

	fs.StringArrayVarP(&fl.regexps, "regexp", "e", nil, "use PATTERNS for matching")
	fs.StringArrayVarP(&fl.patternFiles, "file", "f", nil, "take PATTERNS from FILE")

	fs.BoolVarP(&fl.ignoreCase, "ignore-case", "i", false, "ignore case distinctions")
	fs.BoolVarP(&fl.invert, "invert-match", "v", false, "select non-matching lines")
	fs.BoolVarP(&fl.word, "word-regexp", "w", false, "match only whole words")
	fs.BoolVarP(&fl.line, "line-regexp", "x", false, "match only whole lines")

	fs.BoolVarP(&fl.lineNumber, "line-number", "n", false, "print line number with output lines")
	fs.BoolVarP(&fl.byteOffset, "byte-offset", "b", false, "print the byte offset with output lines")
	fs.BoolVarP(&fl.count, "count", "c", false, "print only a count of selected lines per FILE")
	fs.BoolVarP(&fl.filesWith, "files-with-matches", "l", false, "print only names of FILEs with selected lines")
	fs.BoolVarP(&fl.filesWithout, "files-without-match", "L", false, "print only names of FILEs with no selected lines")
	fs.BoolVarP(&fl.withFilename, "with-filename", "H", false, "print file name with output lines")
	fs.BoolVarP(&fl.noFilename, "no-filename", "h", false, "suppress the file name prefix on output")
	fs.BoolVarP(&fl.onlyMatching, "only-matching", "o", false, "show only nonempty parts of lines that match")
	fs.BoolVarP(&fl.quiet, "quiet", "q", false, "suppress all normal output")
	fs.BoolVar(&fl.quiet, "silent", false, "same as --quiet")
	fs.BoolVarP(&fl.noMessages, "no-messages", "s", false, "suppress error messages")
	fs.BoolVarP(&fl.recursive, "recursive", "r", false, "read all files under each directory")
	fs.BoolVarP(&fl.dereference, "dereference-recursive", "R", false, "likewise, but follow all symlinks")

	fs.Int64VarP(&fl.after, "after-context", "A", -1, "print NUM lines of trailing context")
	fs.Int64VarP(&fl.before, "before-context", "B", -1, "print NUM lines of leading context")
	fs.Int64VarP(&fl.context, "context", "C", -1, "print NUM lines of output context")
	fs.Int64VarP(&fl.maxCount, "max-count", "m", -1, "stop after NUM selected lines")

	fs.StringVarP(&fl.devices, "devices", "D", "read", "how to handle devices, FIFOs and sockets")
	fs.StringVarP(&fl.directories, "directories", "d", "read", "how to handle directories")

	fs.BoolVarP(&fl.textMode, "text", "a", false, "equivalent to --binary-files=text")
	fs.BoolVarP(&fl.skipBinary, "binary-without-match", "I", false, "equivalent to --binary-files=without-match")
	fs.StringVar(&fl.binaryFiles, "binary-files", "", "assume that binary files are TYPE")

	fs.StringArrayVar(&fl.include, "include", nil, "search only files that match GLOB")
	fs.StringArrayVar(&fl.exclude, "exclude", nil, "skip files that match GLOB")
	fs.StringArrayVar(&fl.excludeDir, "exclude-dir", nil, "skip directories that match GLOB")
	fs.StringArrayVar(&fl.excludeFrom, "exclude-from", nil, "skip files that match any pattern from FILE")

	fs.StringVar(&fl.label, "label", "", "use LABEL as standard input file name prefix")
	fs.BoolVarP(&fl.nullSep, "null", "Z", false, "print NUL after FILE name")
	fs.BoolVarP(&fl.nullData, "null-data", "z", false, "a data line ends in NUL, not newline")
	fs.IntVarP(&fl.threads, "threads", "p", 0, "search directory trees with NUM parallel workers")
	fs.StringVar(&fl.color, "color", "never", "use markers to highlight the matching strings")
	fs.Lookup("color").NoOptDefVal = "auto"
	fs.BoolVar(&fl.lineBuffered, "line-buffered", false, "flush output on every line")
	fs.StringVar(&fl.groupSep, "group-separator", "", "print SEP instead of -- between groups")
	fs.BoolVar(&fl.noGroupSep, "no-group-separator", false, "do not print a separator between groups")
	fs.BoolVarP(&fl.initialTab, "initial-tab", "T", false, "make tabs line up")

	fs.BoolVarP(&fl.binaryMode, "binary", "U", false, "do not strip CR characters at EOL (MSDOS/Windows)")
	fs.BoolVarP(&fl.unixByteOffsets, "unix-byte-offsets", "u", false, "report offsets as if CRs were not there (MSDOS/Windows)")
	fs.MarkHidden("binary")
	fs.MarkHidden("unix-byte-offsets")
}

// expandContextShorthand rewrites a -NUM argument into --context=NUM,
// the traditional digit-string shorthand.
var digitArg = regexp.MustCompile(`^-[0-9]+$`)

func expandContextShorthand(argv []string) []string {
	out := make([]string, 0, len(argv))
	for i, a := range argv {
		if a == "--" {
			out = append(out, argv[i:]...)
			break
		}
		if digitArg.MatchString(a) {
			out = append(out, "--context="+a[1:])
			continue
		}
		out = append(out, a)
	}
	return out
}

func execute(cmd *cobra.Command, fl *cliFlags, args []string) int {
	cfg := &lgrep.Config{
		CaseFold:         fl.ignoreCase,
		Invert:           fl.invert,
		WordMatch:        fl.word,
		LineMatch:        fl.line,
		MaxCount:         fl.maxCount,
		WithFilename:     fl.withFilename,
		NoFilename:       fl.noFilename,
		LineNumber:       fl.lineNumber,
		ByteOffset:       fl.byteOffset,
		OnlyMatching:     fl.onlyMatching,
		CountMatches:     fl.count,
		Quiet:            fl.quiet,
		SuppressErrors:   fl.noMessages,
		Label:            fl.label,
		NullData:         fl.nullData,
		NullSep:          fl.nullSep,
		AlignTabs:        fl.initialTab,
		LineBuffered:     fl.lineBuffered,
		GroupSeparator:   fl.groupSep,
		NoGroupSeparator: fl.noGroupSep,
	}

	dialect, err := pickDialect(fl)
	if err != nil {
		return usageError(err)
	}
	cfg.Dialect = dialect

	cfg.OutBefore, cfg.OutAfter = fl.before, fl.after
	if fl.context >= 0 {
		if cfg.OutBefore < 0 {
			cfg.OutBefore = fl.context
		}
		if cfg.OutAfter < 0 {
			cfg.OutAfter = fl.context
		}
	}

	switch {
	case fl.filesWith:
		cfg.ListFiles = lgrep.ListMatching
	case fl.filesWithout:
		cfg.ListFiles = lgrep.ListNonmatching
	}

	switch fl.binaryFiles {
	case "", "binary":
		cfg.Binary = scanner.BinaryBinary
	case "text":
		cfg.Binary = scanner.BinaryText
	case "without-match":
		cfg.Binary = scanner.BinaryWithoutMatch
	default:
		return usageError(fmt.Errorf("unknown binary-files type %q", fl.binaryFiles))
	}
	if fl.textMode {
		cfg.Binary = scanner.BinaryText
	}
	if fl.skipBinary {
		cfg.Binary = scanner.BinaryWithoutMatch
	}

	switch fl.devices {
	case "read":
		// Unless requested explicitly, devices found during traversal
		// are skipped and only command-line devices are read.
		if cmd.Flags().Changed("devices") {
			cfg.Devices = lgrep.DevRead
		} else {
			cfg.Devices = lgrep.DevReadCommandLine
		}
	case "skip":
		cfg.Devices = lgrep.DevSkip
	default:
		return usageError(fmt.Errorf("invalid argument %q for --devices", fl.devices))
	}

	switch fl.directories {
	case "read":
		cfg.Directories = lgrep.DirRead
	case "recurse":
		cfg.Directories = lgrep.DirRecurse
	case "skip":
		cfg.Directories = lgrep.DirSkip
	default:
		return usageError(fmt.Errorf("invalid argument %q for --directories", fl.directories))
	}
	if fl.recursive || fl.dereference {
		cfg.Directories = lgrep.DirRecurse
		cfg.Follow = fl.dereference
	}

	switch fl.color {
	case "never", "no", "none":
		cfg.Color = lgrep.ColorNever
	case "always", "yes", "force":
		cfg.Color = lgrep.ColorAlways
	case "auto", "tty", "if-tty":
		cfg.Color = lgrep.ColorAuto
	default:
		return usageError(fmt.Errorf("invalid argument %q for --color", fl.color))
	}
	if cfg.Color != lgrep.ColorNever {
		cfg.Colors = colorsFromEnv()
	}

	patterns, rest, err := collectPatterns(fl, args)
	if err != nil {
		return usageError(err)
	}
	cfg.Patterns = patterns

	skip, err := buildSkip(fl)
	if err != nil {
		return usageError(err)
	}
	cfg.Skip = skip

	maxThreads := 6 * runtime.NumCPU()
	threadsSet := cmd.Flags().Changed("threads")
	switch {
	case threadsSet && fl.threads < 1:
		return usageError(fmt.Errorf("number of threads has to be positive"))
	case threadsSet:
		cfg.Threads = fl.threads
		if cfg.Threads > maxThreads {
			cfg.Threads = maxThreads
		}
	case cfg.Directories == lgrep.DirRecurse:
		cfg.Threads = runtime.NumCPU()
	}
	if threadsSet && cfg.Threads > 1 {
		switch {
		case cfg.Directories != lgrep.DirRecurse:
			return usageError(fmt.Errorf("multithreading has to be used with -r"))
		case cfg.OutBefore >= 0 || cfg.OutAfter >= 0:
			return usageError(fmt.Errorf("multithreading doesn't support outputting context"))
		case cfg.LineBuffered:
			return usageError(fmt.Errorf("multithreading doesn't support line buffering"))
		case cfg.Skip != nil:
			return usageError(fmt.Errorf("multithreading doesn't support include/exclude options"))
		case cfg.WordMatch:
			return usageError(fmt.Errorf("multithreading doesn't support the match words option"))
		}
	}

	return lgrep.Run(cfg, rest, os.Stdout, os.Stderr)
}

func usageError(err error) int {
	fmt.Fprintf(os.Stderr, "lgrep: %v\n", err)
	return lgrep.ExitTrouble
}

func pickDialect(fl *cliFlags) (matcher.Dialect, error) {
	chosen := matcher.DialectBasic
	n := 0
	for _, sel := range []struct {
		on bool
		d  matcher.Dialect
	}{
		{fl.extended, matcher.DialectExtended},
		{fl.fixed, matcher.DialectFixed},
		{fl.basic, matcher.DialectBasic},
		{fl.perl, matcher.DialectPerl},
	} {
		if sel.on {
			chosen = sel.d
			n++
		}
	}
	if n > 1 {
		return 0, fmt.Errorf("conflicting matchers specified")
	}
	return chosen, nil
}

// collectPatterns assembles the pattern set from -e options, -f files,
// and the first positional argument, splitting each source on newlines
// and recording origins for compile diagnostics.
func collectPatterns(fl *cliFlags, args []string) ([]matcher.Pattern, []string, error) {
	var pats []matcher.Pattern
	add := func(text, file string, firstLine int) {
		for i, line := range strings.Split(text, "\n") {
			pats = append(pats, matcher.Pattern{Text: line, File: file, Line: firstLine + i})
		}
	}

	for _, e := range fl.regexps {
		add(e, "", 0)
	}
	for _, name := range fl.patternFiles {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, nil, err
		}
		text := string(data)
		// A trailing newline terminates the last pattern rather than
		// introducing an empty one; an empty file has no patterns.
		text = strings.TrimSuffix(text, "\n")
		if len(data) == 0 {
			continue
		}
		add(text, name, 1)
	}

	if len(fl.regexps) == 0 && len(fl.patternFiles) == 0 {
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("no pattern given")
		}
		add(args[0], "", 0)
		args = args[1:]
	}
	return pats, args, nil
}

// buildSkip compiles the include/exclude options into the exclusion
// predicate. Globs match against the entry base name.
func buildSkip(fl *cliFlags) (func(name string, isDir bool) bool, error) {
	exclude := append([]string(nil), fl.exclude...)
	for _, name := range fl.excludeFrom {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(strings.TrimSuffix(string(data), "\n"), "\n") {
			if line != "" {
				exclude = append(exclude, line)
			}
		}
	}
	if len(fl.include) == 0 && len(exclude) == 0 && len(fl.excludeDir) == 0 {
		return nil, nil
	}
	include := fl.include
	excludeDir := fl.excludeDir

	globMatch := func(pats []string, name string) bool {
		base := filepath.Base(name)
		for _, p := range pats {
			if ok, _ := path.Match(p, base); ok {
				return true
			}
		}
		return false
	}
	return func(name string, isDir bool) bool {
		if isDir {
			return globMatch(excludeDir, name)
		}
		if globMatch(exclude, name) {
			return true
		}
		if len(include) > 0 && !globMatch(include, name) {
			return true
		}
		return false
	}, nil
}

// colorsFromEnv applies the legacy GREP_COLOR and the GREP_COLORS
// capability list on top of the default palette.
func colorsFromEnv() *scanner.ColorScheme {
	c := scanner.DefaultColors()
	if legacy := os.Getenv("GREP_COLOR"); legacy != "" {
		c.SelectedMatch = legacy
		c.ContextMatch = legacy
	}
	if spec := os.Getenv("GREP_COLORS"); spec != "" {
		scanner.ParseColors(spec, c)
	}
	return c
}
