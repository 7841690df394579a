package device

import (
	"edgeflowd/internal/protocol"
	"edgeflowd/pkg/types"
)

// ProbeInfo queries the device's model geometry over a fresh session.
func (m *Manager) ProbeInfo() (types.DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeInfoLocked()
}

// probeInfoLocked performs the metadata exchange without taking the lock.
// Must only be called with mu held; FlashModel relies on this to re-validate
// device metadata while still inside its own critical section.
func (m *Manager) probeInfoLocked() (types.DeviceInfo, error) {
	port, err := m.ports.Open()
	if err != nil {
		m.noteProbe(types.DeviceInfo{}, err)
		return types.DeviceInfo{}, err
	}
	defer port.Close()

	sess := protocol.NewSession(port)
	sess.ResetBuffers()
	info, err := sess.QueryInfo(m.cfg.ProbeTimeout)
	m.noteProbe(info, err)
	return info, err
}
