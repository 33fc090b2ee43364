package rooms

import (
	"context"
	"time"
)

// runSweeper periodically reclaims long-idle empty rooms. The normal
// path deletes an emptied room synchronously, so removals here are
// silent except for one aggregate directory refresh.
func (m *Module) runSweeper(ctx context.Context) {
	defer close(m.sweepDone)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Idle-room sweeper stopping")
			return
		case now := <-ticker.C:
			m.opMu.Lock()
			removed := m.store.SweepIdle(now, m.idleMaxAge)
			if removed > 0 {
				m.publishRoomsList()
			}
			m.opMu.Unlock()

			if removed > 0 {
				m.logger.Info("Swept idle rooms", "removed", removed)
			}
		}
	}
}
