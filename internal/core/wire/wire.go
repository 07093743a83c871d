// If you are AI: This file defines the on-wire binary framing shared with the
// edge-side splitter: the FT32 stream header and the DATA frame header.
// The relay only ever emits stream headers; DATA frames are produced upstream
// and forwarded verbatim. All fields are little-endian.

package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// MagicStream identifies a stream header ("FT32", float32 I/Q stream).
	MagicStream = 0x46543332
	// MagicData identifies a data frame header ("DATA").
	MagicData = 0x44415441

	// HeaderSize is the size of both header types on the wire.
	HeaderSize = 16

	// BytesPerSample is the wire size of one interleaved I/Q pair
	// (two float32 values).
	BytesPerSample = 8
)

// StreamHeader is the first thing every consumer receives on a stream
// connection, exactly once.
type StreamHeader struct {
	SampleRate uint32 // Hz (50000 or 12000)
}

// Encode renders the 16-byte stream header.
func (h StreamHeader) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	binary.LittleEndian.PutUint32(out[0:4], MagicStream)
	binary.LittleEndian.PutUint32(out[4:8], h.SampleRate)
	// reserved1, reserved2 stay zero
	return out
}

// ParseStreamHeader decodes and validates a 16-byte stream header.
func ParseStreamHeader(p []byte) (StreamHeader, error) {
	if len(p) < HeaderSize {
		return StreamHeader{}, fmt.Errorf("stream header: short buffer (%d bytes)", len(p))
	}
	if magic := binary.LittleEndian.Uint32(p[0:4]); magic != MagicStream {
		return StreamHeader{}, fmt.Errorf("stream header: bad magic 0x%08x", magic)
	}
	return StreamHeader{SampleRate: binary.LittleEndian.Uint32(p[4:8])}, nil
}

// DataFrame is the header of one producer-emitted frame. The relay never
// constructs these; the type exists for tests and tooling that need to walk
// a relayed byte stream.
type DataFrame struct {
	Sequence   uint32
	NumSamples uint32 // I/Q pairs following the header
	Flags      uint32
}

// PayloadSize returns the number of payload bytes following the frame header.
func (f DataFrame) PayloadSize() int {
	return int(f.NumSamples) * BytesPerSample
}

// Encode renders the 16-byte frame header.
func (f DataFrame) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	binary.LittleEndian.PutUint32(out[0:4], MagicData)
	binary.LittleEndian.PutUint32(out[4:8], f.Sequence)
	binary.LittleEndian.PutUint32(out[8:12], f.NumSamples)
	binary.LittleEndian.PutUint32(out[12:16], f.Flags)
	return out
}

// ParseDataFrame decodes and validates a 16-byte data frame header.
func ParseDataFrame(p []byte) (DataFrame, error) {
	if len(p) < HeaderSize {
		return DataFrame{}, fmt.Errorf("data frame: short buffer (%d bytes)", len(p))
	}
	if magic := binary.LittleEndian.Uint32(p[0:4]); magic != MagicData {
		return DataFrame{}, fmt.Errorf("data frame: bad magic 0x%08x", magic)
	}
	return DataFrame{
		Sequence:   binary.LittleEndian.Uint32(p[4:8]),
		NumSamples: binary.LittleEndian.Uint32(p[8:12]),
		Flags:      binary.LittleEndian.Uint32(p[12:16]),
	}, nil
}
