package scanner

// BinaryPolicy selects how a file detected as binary is handled.
type BinaryPolicy int

const (
	// BinaryBinary suppresses line bodies and reports a one-line
	// synopsis if the file matched (default).
	BinaryBinary BinaryPolicy = iota
	// BinaryText processes binary files as if they were text (-a).
	BinaryText
	// BinaryWithoutMatch treats binary files as never matching (-I).
	BinaryWithoutMatch
)

// Options is the per-invocation configuration the scanner and its line
// printer consume. The driver derives it once from the top-level
// configuration; it is immutable during a scan.
type Options struct {
	Invert bool // -v

	// OutBefore and OutAfter are the context window in lines; -1 means
	// the option was not given, which also suppresses group separators.
	OutBefore int64
	OutAfter  int64

	MaxCount int64 // -m budget per file; the driver passes MaxInt64 for "unlimited"

	LineNumber   bool // -n
	ByteOffset   bool // -b
	OnlyMatching bool // -o

	// OutQuiet suppresses line output entirely (-q, -c, -l, -L);
	// DoneOnMatch stops a file at its first selected line.
	OutQuiet    bool
	DoneOnMatch bool

	// CountMatches keeps a binary file counting through to the end
	// instead of stopping at its first match.
	CountMatches bool

	Binary BinaryPolicy

	EOL     byte // '\n', or 0 in null-data mode (-z)
	NullSep bool // -Z: NUL after the file name instead of the separator

	AlignTabs    bool // --initial-tab
	LineBuffered bool // --line-buffered

	// GroupSeparator is printed on its own line between non-adjacent
	// context groups; empty suppresses it (--no-group-separator).
	GroupSeparator string

	// Colors enables SGR markup when non-nil.
	Colors *ColorScheme

	// SkipEmptyLines reports that empty lines cannot be selected, which
	// permits wholesale NUL-run skipping in null-data mode.
	SkipEmptyLines bool
}

const (
	sepSelected = ':'
	sepRejected = '-'
)
