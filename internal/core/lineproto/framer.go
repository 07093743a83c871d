// If you are AI: This file implements the newline-delimited line accumulator
// used by the discovery coordinator. Edges send one JSON object per line;
// TCP reads arrive in arbitrary fragments, so partial lines are carried
// between reads.

package lineproto

import "bytes"

// MaxLine is the accumulator size. A line that grows past this without a
// newline is a protocol violation; the accumulator resets and input resyncs
// at the next newline.
const MaxLine = 8192

// Framer accumulates raw bytes and emits complete lines.
// Lock expectations: none; each framer is owned by the coordinator goroutine
// of its edge session.
type Framer struct {
	buf    [MaxLine]byte
	length int
	resync bool // Dropping bytes until the next newline after an overflow
}

// Append consumes a read fragment and returns the complete lines it closed,
// without their trailing newline. Empty lines are skipped. Returned slices
// are copies and stay valid.
func (f *Framer) Append(data []byte) [][]byte {
	var lines [][]byte

	for len(data) > 0 {
		if f.resync {
			// Discard until the violation's terminating newline.
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				return lines
			}
			data = data[i+1:]
			f.resync = false
			continue
		}

		n := copy(f.buf[f.length:], data)
		f.length += n
		data = data[n:]

		// Emit every complete line currently buffered.
		start := 0
		for {
			i := bytes.IndexByte(f.buf[start:f.length], '\n')
			if i < 0 {
				break
			}
			line := trimCR(f.buf[start : start+i])
			if len(line) > 0 {
				lines = append(lines, append([]byte(nil), line...))
			}
			start += i + 1
		}

		// Keep the trailing partial line at the front.
		if start > 0 {
			copy(f.buf[:], f.buf[start:f.length])
			f.length -= start
		}

		// Oversize line with no newline in sight: reset and resync.
		if f.length == len(f.buf) && len(data) > 0 {
			f.length = 0
			f.resync = true
		}
	}

	return lines
}

// Reset discards all buffered input.
func (f *Framer) Reset() {
	f.length = 0
	f.resync = false
}

// Pending returns the number of buffered partial-line bytes.
func (f *Framer) Pending() int {
	return f.length
}

func trimCR(p []byte) []byte {
	if n := len(p); n > 0 && p[n-1] == '\r' {
		return p[:n-1]
	}
	return p
}
