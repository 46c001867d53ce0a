package cms

import "time"

// ResolvePublish returns the publication timestamp after a status write.
// Moving into published with no timestamp stamps now; every other case keeps
// existing, so demotion never clears it and republishing never re-stamps.
// The previous status is accepted for symmetry with the write path but does
// not change the outcome.
func ResolvePublish(newStatus, _ Status, existing *time.Time, now time.Time) *time.Time {
	if newStatus == StatusPublished && existing == nil {
		stamped := now
		return &stamped
	}
	return existing
}
