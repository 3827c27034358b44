// Package live holds the domain vocabulary shared by the prober, detector,
// cache, and HTTP surface: the three-valued broadcast status and the rules
// for what counts as a well-formed channel handle.
package live

import "regexp"

// Status is the classification of one probe: live, offline, or unknown.
// Unknown covers failed probes and anti-bot blocks; it is deliberately never
// collapsed into offline so a blocked probe cannot masquerade as a confident
// "not broadcasting" answer.
type Status string

const (
	StatusLive    Status = "live"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Result is the immutable outcome of classifying one probe. RoomID is the
// platform's numeric room identifier when one could be extracted, empty
// otherwise.
type Result struct {
	Status Status `json:"status"`
	RoomID string `json:"roomId"`
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._]{2,24}$`)

// ValidHandle reports whether s is an acceptable channel handle: 2-24
// characters drawn from letters, digits, period, and underscore.
func ValidHandle(s string) bool {
	return handlePattern.MatchString(s)
}
