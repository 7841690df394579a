package device

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"edgeflowd/internal/protocol"
	"edgeflowd/pkg/types"
)

// Infer runs one batch against the device. shape must be rank 2 (one sample,
// (T,F)) or rank 3 ((N,T,F)); anything else is rejected before any device
// I/O. The lock is held for the whole batch so no other lifecycle operation
// can interleave between samples, and the session's info exchange pins the
// geometry every prediction in the batch is validated against.
//
// ctx bounds nothing here beyond construction: serial exchanges run to their
// own per-step deadlines and cannot be canceled mid-flight.
func (m *Manager) Infer(ctx context.Context, shape []int, data []float32) ([][]float32, types.InferTiming, error) {
	var timing types.InferTiming

	n, t, f, err := batchDims(shape, len(data))
	if err != nil {
		return nil, timing, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	port, err := m.ports.Open()
	if err != nil {
		m.noteProbe(types.DeviceInfo{}, err)
		return nil, timing, err
	}
	defer port.Close()

	sess := protocol.NewSession(port)
	sess.ResetBuffers()
	info, err := sess.QueryInfo(m.cfg.ProbeTimeout)
	m.noteProbe(info, err)
	if err != nil {
		return nil, timing, err
	}
	if t != info.T || f != info.F {
		return nil, timing, ErrShape("shape mismatch: got (%d,%d,%d), device expects (N,%d,%d)", n, t, f, info.T, info.F)
	}

	sampleLen := t * f
	preds := make([][]float32, n)
	perSample := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		payload := floatsToBytes(data[i*sampleLen : (i+1)*sampleLen])
		ts := time.Now()
		raw, err := sess.InferOne(payload, info.H, m.cfg.SampleTimeout)
		if err != nil {
			m.noteProbe(types.DeviceInfo{}, err)
			return nil, timing, err
		}
		perSample = append(perSample, float64(time.Since(ts))/float64(time.Millisecond))
		preds[i] = bytesToFloats(raw)
	}

	timing.Device = info
	timing.NSamples = n
	timing.TotalMS = float64(time.Since(start)) / float64(time.Millisecond)
	timing.PerSampleMS = perSample
	timing.MeanPerSampleMS = mean(perSample)
	m.log.Debug().Int("n", n).Float64("mean_per_sample_ms", timing.MeanPerSampleMS).Msg("batch inferred")
	return preds, timing, nil
}

// batchDims validates the input rank and element count, normalizing rank 2 to
// a batch of one.
func batchDims(shape []int, elems int) (n, t, f int, err error) {
	switch len(shape) {
	case 2:
		n, t, f = 1, shape[0], shape[1]
	case 3:
		n, t, f = shape[0], shape[1], shape[2]
	default:
		return 0, 0, 0, ErrShape("input must have shape (T,F) or (N,T,F), got rank %d", len(shape))
	}
	if n <= 0 || t <= 0 || f <= 0 {
		return 0, 0, 0, ErrShape("input dimensions must be positive, got (%d,%d,%d)", n, t, f)
	}
	if n*t*f != elems {
		return 0, 0, 0, ErrShape("shape (%d,%d,%d) implies %d elements, got %d", n, t, f, n*t*f, elems)
	}
	return n, t, f, nil
}

func floatsToBytes(vals []float32) []byte {
	out := make([]byte, 0, len(vals)*4)
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
