package device

import (
	"context"
	"path/filepath"

	"edgeflowd/internal/common/fsutil"
)

// EnsureBuilt makes sure a firmware build artifact exists, invoking the build
// tool if not. Idempotent: a prior successful build is detected by its ninja
// marker and skipped.
func (m *Manager) EnsureBuilt(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureBuiltLocked(ctx)
}

// ensureBuiltLocked is the non-locking variant used by FlashModel, which
// already holds mu. Must only be called with mu held.
func (m *Manager) ensureBuiltLocked(ctx context.Context) error {
	marker := filepath.Join(m.cfg.ProjectDir, "build", "build.ninja")
	if fsutil.PathExists(marker) {
		return nil
	}
	m.log.Info().Str("project", m.cfg.ProjectDir).Msg("no build artifact, building firmware")
	_, err := m.runIDFLocked(ctx, m.cfg.BuildTimeout, "build")
	return err
}
