// Package textutil provides byte-level helpers shared by the matcher and
// the stream scanner: line boundary location, NUL zapping, and zero-run
// detection. All functions treat the end-of-line byte as a parameter so
// that null-data mode (-z) needs no special casing at call sites.
package textutil

import "bytes"

// LineBegin returns the index of the first byte of the line containing
// position pos. It reverse-searches for the end-of-line byte.
func LineBegin(buf []byte, pos int, eol byte) int {
	i := bytes.LastIndexByte(buf[:pos], eol)
	return i + 1
}

// LineEnd returns the index just past the end-of-line byte of the line
// containing pos, or len(buf) when the last line is unterminated.
func LineEnd(buf []byte, pos int, eol byte) int {
	i := bytes.IndexByte(buf[pos:], eol)
	if i < 0 {
		return len(buf)
	}
	return pos + i + 1
}

// ContentEnd returns the index just past the last content byte of the
// line [beg, end), excluding the terminating end-of-line byte if present.
func ContentEnd(buf []byte, beg, end int, eol byte) int {
	if end > beg && buf[end-1] == eol {
		return end - 1
	}
	return end
}

// ZapNuls overwrites every NUL byte in buf with eol so that long NUL runs
// inside binary data cannot accrete into one unreasonably long line.
// A zero eol leaves the buffer untouched.
func ZapNuls(buf []byte, eol byte) {
	if eol == 0 {
		return
	}
	for {
		i := bytes.IndexByte(buf, 0)
		if i < 0 {
			return
		}
		for i < len(buf) && buf[i] == 0 {
			buf[i] = eol
			i++
		}
		buf = buf[i:]
	}
}

// AllZeros reports whether buf consists entirely of zero bytes.
func AllZeros(buf []byte) bool {
	for len(buf) >= 8 {
		if buf[0]|buf[1]|buf[2]|buf[3]|buf[4]|buf[5]|buf[6]|buf[7] != 0 {
			return false
		}
		buf = buf[8:]
	}
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}
