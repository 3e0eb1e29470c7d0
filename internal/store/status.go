package store

import "papertrader/internal/models"

// isOpen reports whether a position in the given status may still be
// edited. A Position has exactly two states and one legal edge between
// them (OPEN -> CLOSED); UpdateSLTP uses this check to refuse edits on a
// CLOSED position, while ClosePosition enforces the edge through its
// guarded UPDATE.
func isOpen(status models.Status) bool {
	return status == models.StatusOpen
}
