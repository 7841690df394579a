package device

import (
	"context"
	"path/filepath"
	"time"

	"edgeflowd/internal/common/fsutil"
	"edgeflowd/pkg/types"
)

// FlashModel stages the model artifact, flashes it onto the device, waits out
// the firmware reboot window, and re-probes the device geometry. The whole
// sequence runs under the manager lock; the probe uses the non-locking
// variant because flash already holds mu.
//
// Ownership of the artifact transfers to the device on success; the staged
// files remain only as the input for the next flash. A failed post-flash
// probe propagates as-is: the device is left for manual intervention, no
// rollback or retry is attempted.
func (m *Manager) FlashModel(ctx context.Context, model, meta []byte) (types.FlashReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report types.FlashReport
	if err := m.ensureBuiltLocked(ctx); err != nil {
		return report, err
	}

	if err := fsutil.WriteFileAtomic(filepath.Join(m.cfg.StagingDir, modelFileName), model, 0o644); err != nil {
		return report, err
	}
	if meta != nil {
		if err := fsutil.WriteFileAtomic(filepath.Join(m.cfg.StagingDir, metaFileName), meta, 0o644); err != nil {
			return report, err
		}
	}
	m.log.Info().Int("model_bytes", len(model)).Bool("meta", meta != nil).Msg("staged model artifact")

	res, err := m.runIDFLocked(ctx, m.cfg.FlashTimeout, "model-flash")
	if err != nil {
		m.noteProbe(types.DeviceInfo{}, err)
		return report, err
	}

	// firmware reboots after flash and needs settling time before it answers
	time.Sleep(m.cfg.RebootDelay)

	info, err := m.probeInfoLocked()
	if err != nil {
		return report, err
	}
	m.log.Info().Dur("flash", res.Duration).
		Int("T", info.T).Int("F", info.F).Int("H", info.H).
		Msg("model flashed and verified")

	report.FlashMS = float64(res.Duration) / float64(time.Millisecond)
	report.Output = outputTail(res)
	report.Device = info
	return report, nil
}
