package session

import (
	"context"
	"time"
)

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval returns immediately.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	m.log.Info("session.sweeper.start", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			m.log.Info("session.sweeper.stop")
			return
		case now := <-t.C:
			sctx, cancel := context.WithTimeout(ctx, interval)
			n, err := m.Sweep(sctx, now.UTC())
			cancel()
			if err != nil {
				m.log.Warn("session.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				m.log.Info("session.sweep.done", "removed", n)
			}
		}
	}
}
