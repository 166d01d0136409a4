package session

import (
	"encoding/json"
	"time"
)

type storedSession struct {
	IsAdmin   *bool  `json:"isAdmin"`
	Timestamp *int64 `json:"timestamp"`
}

// HasAdminAccess checks a session object kept by older storefront clients:
// {"isAdmin": true, "timestamp": <unix millis>}. Anything that does not parse,
// lacks either field or is older than MaxAge denies access.
func HasAdminAccess(data []byte, now time.Time) bool {
	var s storedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return false
	}
	if s.IsAdmin == nil || s.Timestamp == nil || *s.Timestamp <= 0 {
		return false
	}

	return Session{IsAdmin: *s.IsAdmin, IssuedAt: time.UnixMilli(*s.Timestamp)}.Valid(now, MaxAge)
}
