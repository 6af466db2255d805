package scanner

import (
	"errors"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// seekData jumps the descriptor to the next data segment past the
// current offset, counting the skipped hole bytes as zero-width lines.
// Solaris-style SEEK_DATA fails with ENXIO inside a hole at EOF; that
// case seeks to the end instead. Any other failure latches
// seekDataFailed and the scan degrades to plain sequential reads.
func (s *Scanner) seekData(st os.FileInfo) {
	fd := int(s.desc.Fd())
	dataStart, err := unix.Seek(fd, s.bufOffset, unix.SEEK_DATA)
	if errors.Is(err, unix.ENXIO) && usableSize(st) && s.bufOffset < st.Size() {
		dataStart, err = unix.Seek(fd, 0, io.SeekEnd)
	}
	if err != nil {
		s.seekDataFailed = true
		return
	}
	s.totalnl += dataStart - s.bufOffset
	s.bufOffset = dataStart
}

// fileMustHaveNulls reports whether the file is known to contain NUL
// bytes beyond the size bytes already read: a regular file with a hole
// before EOF must, since holes read back as zeros.
func (s *Scanner) fileMustHaveNulls(size int64, f *os.File, st os.FileInfo) bool {
	if !usableSize(st) || st.Size() <= size {
		return false
	}
	fd := int(f.Fd())
	cur := size
	if f == os.Stdin {
		off, err := unix.Seek(fd, 0, io.SeekCurrent)
		if err != nil {
			return false
		}
		cur = off
	}
	holeStart, err := unix.Seek(fd, cur, unix.SEEK_HOLE)
	if err != nil {
		return false
	}
	if _, err := unix.Seek(fd, cur, io.SeekStart); err != nil {
		return false
	}
	return holeStart < st.Size()
}
