package httpapi

import (
	"github.com/labstack/echo/v4"
)

// handleCleanupExpired sweeps containers whose name timestamp is older than
// the configured retention. The cron schedule triggers the same sweep.
func (s *Server) handleCleanupExpired(c echo.Context) error {
	if s.cleaner == nil {
		return internalError(c, "storage cleanup is not available")
	}

	deleted, err := s.cleaner.Sweep(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("container sweep failed")
		return internalError(c, "failed to sweep expired containers")
	}

	return success(c, map[string]any{
		"deleted":       deleted,
		"deleted_count": len(deleted),
	})
}
