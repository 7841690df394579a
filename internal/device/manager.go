package device

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edgeflowd/pkg/types"
)

// Manager coordinates all access to the device. mu serializes lifecycle
// operations; it is the sole correctness mechanism against concurrent
// transitions, there is no separate state machine field.
type Manager struct {
	mu     sync.Mutex
	cfg    ManagerConfig
	runner ToolRunner
	ports  PortOpener
	log    zerolog.Logger

	startTime time.Time

	// last successful probe result, for readiness reporting. Guarded by mu.
	lastInfo *types.DeviceInfo
	lastErr  string
}

// SerialPort returns the configured serial device path.
func (m *Manager) SerialPort() string { return m.cfg.SerialPort }

// Ready reports whether the device has answered a probe since the last error.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInfo != nil && m.lastErr == ""
}

// LastInfo returns the most recent probed geometry, if any.
func (m *Manager) LastInfo() (types.DeviceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastInfo == nil {
		return types.DeviceInfo{}, false
	}
	return *m.lastInfo, true
}

// noteProbe records the outcome of a device exchange. Callers hold mu.
func (m *Manager) noteProbe(info types.DeviceInfo, err error) {
	if err != nil {
		m.lastErr = err.Error()
		return
	}
	cp := info
	m.lastInfo = &cp
	m.lastErr = ""
}
