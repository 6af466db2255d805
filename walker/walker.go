// Package walker enumerates a directory tree in a deterministic order,
// classifying every entry the way the search driver needs: pre- and
// post-order directory events, regular files, symlinks, skipped entries,
// cycles, and unreadable directories.
//
// The enumeration is an explicit-stack iterator so a caller can pause at
// any point and resume later — the parallel coordinator restarts its
// workers between output flushes and each worker's walk must continue
// where it stopped. Directory listings come from os.ReadDir, whose
// sorted order makes every walk of the same tree identical; the modular
// claim rule in the parallel coordinator depends on all workers seeing
// entries in exactly the same sequence.
//
// Every classified entry, including skips and failures, is one
// enumeration event. Callers count events to assign work; the count must
// not depend on which worker is looking.
package walker

import (
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Kind classifies one enumerated entry.
type Kind int

const (
	// KindFile is a regular file, a followed symlink target, or an
	// entry of unknown type the caller should try to open.
	KindFile Kind = iota
	// KindDirPre announces a directory before its children.
	KindDirPre
	// KindDirPost announces a directory after its children.
	KindDirPost
	// KindSymlink is a symbolic link that policy says not to follow.
	KindSymlink
	// KindSkip is an entry rejected by the exclusion predicate.
	KindSkip
	// KindCycle is a directory that is its own ancestor.
	KindCycle
	// KindError is an entry that could not be examined or read.
	KindError
)

// Entry is one enumeration event.
type Entry struct {
	Path string // full path from the walk root
	Name string // base name
	Kind Kind
	Info os.FileInfo // lstat result, or the target's stat for the root and followed links; nil when unavailable
	Err  error       // set for KindError
}

// Options configures a walk.
type Options struct {
	// FollowSymlinks follows symbolic links found during traversal
	// (-R); links are otherwise reported as KindSymlink and skipped.
	FollowSymlinks bool
	// Skip is the compiled exclusion predicate, applied to every entry
	// except the root itself. Nil skips nothing.
	Skip func(name string, isDir bool) bool
}

type frame struct {
	path    string
	entries []fs.DirEntry
	idx     int
	dev     uint64
	ino     uint64
}

// Walk is a resumable iterator over one tree.
type Walk struct {
	opts    Options
	root    string
	started bool
	done    bool
	stack   []*frame
}

// New prepares a walk rooted at root. Nothing is opened until Next.
func New(root string, opts Options) *Walk {
	return &Walk{opts: opts, root: root}
}

// Next returns the next enumeration event, or ok == false when the tree
// is exhausted.
func (w *Walk) Next() (Entry, bool) {
	if w.done {
		return Entry{}, false
	}
	if !w.started {
		w.started = true
		return w.enterRoot(), true
	}
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.idx >= len(top.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			if len(w.stack) == 0 {
				w.done = true
			}
			return Entry{Path: top.path, Name: filepath.Base(top.path), Kind: KindDirPost}, true
		}
		de := top.entries[top.idx]
		top.idx++
		return w.classify(top, de), true
	}
	w.done = true
	return Entry{}, false
}

// enterRoot classifies the command-line root: the exclusion predicate
// does not apply to it, and a root symlink is always followed.
func (w *Walk) enterRoot() Entry {
	info, err := os.Stat(w.root)
	if err != nil {
		w.done = true
		return Entry{Path: w.root, Name: filepath.Base(w.root), Kind: KindError, Err: err}
	}
	if !info.IsDir() {
		w.done = true
		return Entry{Path: w.root, Name: filepath.Base(w.root), Kind: KindFile, Info: info}
	}
	ent := w.enterDir(w.root, info)
	if ent.Kind == KindError {
		w.done = true
	}
	return ent
}

func (w *Walk) classify(parent *frame, de fs.DirEntry) Entry {
	name := de.Name()
	full := filepath.Join(parent.path, name)

	typ := de.Type()
	if typ&^fs.ModeType != 0 {
		// The directory stream did not reveal the type; ask lstat.
		info, err := os.Lstat(full)
		if err != nil {
			return Entry{Path: full, Name: name, Kind: KindError, Err: err}
		}
		typ = info.Mode().Type()
	}
	if typ&fs.ModeSymlink != 0 {
		if !w.opts.FollowSymlinks {
			return Entry{Path: full, Name: name, Kind: KindSymlink}
		}
		info, err := os.Stat(full)
		if err == nil && info.IsDir() {
			return w.descend(full, name, info)
		}
		if w.opts.Skip != nil && w.opts.Skip(name, false) {
			return Entry{Path: full, Name: name, Kind: KindSkip}
		}
		if err != nil {
			// A dangling link surfaces as an openable-looking file;
			// the open will fail and be reported suppressibly.
			return Entry{Path: full, Name: name, Kind: KindFile}
		}
		return Entry{Path: full, Name: name, Kind: KindFile, Info: info}
	}

	if typ.IsDir() {
		info, err := de.Info()
		if err != nil {
			return Entry{Path: full, Name: name, Kind: KindError, Err: err}
		}
		return w.descend(full, name, info)
	}

	if w.opts.Skip != nil && w.opts.Skip(name, false) {
		return Entry{Path: full, Name: name, Kind: KindSkip}
	}
	info, err := de.Info()
	if err != nil {
		return Entry{Path: full, Name: name, Kind: KindError, Err: err}
	}
	return Entry{Path: full, Name: name, Kind: KindFile, Info: info}
}

func (w *Walk) descend(full, name string, info os.FileInfo) Entry {
	if w.opts.Skip != nil && w.opts.Skip(name, true) {
		return Entry{Path: full, Name: name, Kind: KindSkip, Info: info}
	}
	dev, ino := devIno(info)
	for _, fr := range w.stack {
		if fr.dev == dev && fr.ino == ino && (dev != 0 || ino != 0) {
			return Entry{Path: full, Name: name, Kind: KindCycle, Info: info}
		}
	}
	return w.enterDir(full, info)
}

func (w *Walk) enterDir(path string, info os.FileInfo) Entry {
	entries, err := os.ReadDir(path)
	if err != nil {
		return Entry{Path: path, Name: filepath.Base(path), Kind: KindError, Err: err}
	}
	dev, ino := devIno(info)
	w.stack = append(w.stack, &frame{path: path, entries: entries, dev: dev, ino: ino})
	return Entry{Path: path, Name: filepath.Base(path), Kind: KindDirPre, Info: info}
}

func devIno(info os.FileInfo) (uint64, uint64) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Dev), uint64(st.Ino)
	}
	return 0, 0
}
