package player

import "context"

// PerformFullRefresh wipes every cached blob, not only the ones the new
// playlist references, then asks for a reload of the player.
func (s *Session) PerformFullRefresh(ctx context.Context) {
	removed, err := s.cache.Purge(ctx)
	if err != nil {
		s.logger.Error("full refresh purge failed", "err", err)
	} else {
		s.logger.Info("full refresh purged media cache", "removed", removed)
	}
	s.mu.Lock()
	s.reloaded = true
	s.mu.Unlock()
	s.reload()
}
