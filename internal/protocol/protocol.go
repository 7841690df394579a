// Package protocol implements the UART frame codec and the request/response
// exchanges spoken with the model_client firmware.
//
// The serial stream is not clean: the device interleaves human-readable boot
// and diagnostic logs with binary frames, and byte alignment is never
// guaranteed. Every read therefore starts by scanning for a 4-byte magic
// marker instead of assuming the next bytes are a frame header. All integers
// and floats on the wire are little-endian.
//
// Host -> Device
//
//	META                          request model metadata
//	INFR + uint32(n) + float32[n] send one flattened sample for inference
//
// Device -> Host
//
//	INFO + uint16{T,F,H,hidden}   report model dimensions
//	PRED + uint32(H) + float32[H] return one prediction vector
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Frame markers. Exactly 4 bytes each.
var (
	MagicMeta = []byte("META")
	MagicInfo = []byte("INFO")
	MagicInfr = []byte("INFR")
	MagicPred = []byte("PRED")
)

const magicLen = 4

// EncodeMetaRequest returns the wire bytes of a metadata request frame.
func EncodeMetaRequest() []byte {
	out := make([]byte, magicLen)
	copy(out, MagicMeta)
	return out
}

// EncodeInferRequest returns the wire bytes of an inference request frame for
// one flattened float32 sample. len(sample) must be a multiple of 4; callers
// validate before encoding.
func EncodeInferRequest(sample []byte) []byte {
	out := make([]byte, magicLen+4+len(sample))
	copy(out, MagicInfr)
	binary.LittleEndian.PutUint32(out[magicLen:], uint32(len(sample)/4))
	copy(out[magicLen+4:], sample)
	return out
}

// ScanMagic consumes the stream one byte at a time until the 4-byte magic
// appears, keeping a sliding window so partial false starts (e.g. "MET" noise
// before the real "META") cannot cause an early or missed match. It never
// consumes bytes past the marker. Zero-byte reads mean no data yet and are
// retried until the deadline passes, at which point a TimeoutError is returned.
func ScanMagic(r io.Reader, magic []byte, where string, deadline time.Time) error {
	if len(magic) != magicLen {
		return fmt.Errorf("magic must be %d bytes, got %d", magicLen, len(magic))
	}
	var window [magicLen]byte
	filled := 0
	buf := make([]byte, 1)
	for {
		if time.Now().After(deadline) {
			return &TimeoutError{Where: where, Waiting: string(magic)}
		}
		n, err := r.Read(buf)
		if n == 0 {
			if err != nil {
				return fmt.Errorf("%s: read: %w", where, err)
			}
			continue
		}
		copy(window[:], window[1:])
		window[magicLen-1] = buf[0]
		if filled < magicLen {
			filled++
		}
		if filled == magicLen && string(window[:]) == string(magic) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: read: %w", where, err)
		}
	}
}

// ReadExact accumulates exactly n bytes from the stream or fails with a
// TimeoutError once the deadline passes. A zero-byte read means no data is
// available yet and is never treated as end-of-stream.
func ReadExact(r io.Reader, n int, where string, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if time.Now().After(deadline) {
			return nil, &TimeoutError{Where: where, Need: n, Got: len(out)}
		}
		k, err := r.Read(buf[:n-len(out)])
		if k > 0 {
			out = append(out, buf[:k]...)
		}
		if err != nil && k == 0 {
			return nil, fmt.Errorf("%s: read: %w", where, err)
		}
	}
	return out, nil
}
