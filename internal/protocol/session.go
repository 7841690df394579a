package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"edgeflowd/pkg/types"
)

// drainer is implemented by ports that can block until written bytes have
// left the host (serial ports expose this as Drain).
type drainer interface {
	Drain() error
}

// bufferResetter is implemented by ports that can discard pending driver
// buffers. Resets are best effort; a failing reset never aborts an exchange.
type bufferResetter interface {
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Session runs protocol exchanges over one open serial connection. It owns no
// locking; the device coordinator serializes access to the link.
type Session struct {
	port io.ReadWriter
}

// NewSession wraps an open port.
func NewSession(port io.ReadWriter) *Session {
	return &Session{port: port}
}

// ResetBuffers discards stale driver buffers left over from a previous
// exchange, when the port supports it.
func (s *Session) ResetBuffers() {
	if br, ok := s.port.(bufferResetter); ok {
		_ = br.ResetInputBuffer()
		_ = br.ResetOutputBuffer()
	}
}

func (s *Session) flush() {
	if d, ok := s.port.(drainer); ok {
		_ = d.Drain()
	}
}

// QueryInfo requests and parses the device's INFO frame.
func (s *Session) QueryInfo(timeout time.Duration) (types.DeviceInfo, error) {
	var info types.DeviceInfo
	if _, err := s.port.Write(EncodeMetaRequest()); err != nil {
		return info, fmt.Errorf("write META: %w", err)
	}
	s.flush()

	deadline := time.Now().Add(timeout)
	if err := ScanMagic(s.port, MagicInfo, "INFO.magic", deadline); err != nil {
		return info, err
	}
	payload, err := ReadExact(s.port, 8, "INFO.payload", deadline)
	if err != nil {
		return info, err
	}
	info.T = int(binary.LittleEndian.Uint16(payload[0:2]))
	info.F = int(binary.LittleEndian.Uint16(payload[2:4]))
	info.H = int(binary.LittleEndian.Uint16(payload[4:6]))
	info.Hidden = int(binary.LittleEndian.Uint16(payload[6:8]))
	return info, nil
}

// InferOne sends one flattened float32 sample and returns the raw prediction
// bytes (expectH * 4 of them). The device prefixes its prediction with the H
// it believes it has; a mismatch against expectH is an IntegrityError, since a
// shifted or stale response must never be returned as data.
func (s *Session) InferOne(sample []byte, expectH int, timeout time.Duration) ([]byte, error) {
	if len(sample)%4 != 0 {
		return nil, fmt.Errorf("sample must be float32 bytes, got %d bytes", len(sample))
	}
	if _, err := s.port.Write(EncodeInferRequest(sample)); err != nil {
		return nil, fmt.Errorf("write INFR: %w", err)
	}
	s.flush()

	deadline := time.Now().Add(timeout)
	if err := ScanMagic(s.port, MagicPred, "PRED.magic", deadline); err != nil {
		return nil, err
	}
	hb, err := ReadExact(s.port, 4, "PRED.H", deadline)
	if err != nil {
		return nil, err
	}
	hDev := int(binary.LittleEndian.Uint32(hb))
	if hDev != expectH {
		return nil, &IntegrityError{Expected: expectH, Got: hDev}
	}
	return ReadExact(s.port, hDev*4, "PRED.payload", deadline)
}
