// Package ratelimit answers "may this tenant send now?" against per-window
// counters in a shared atomic store.
package ratelimit

import (
	"fmt"
	"time"
)

type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows in ascending granularity; the order decides which violated window
// a denial reports.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// KeyFor builds the counter-store key for one (tenant, message type,
// window) counter. The key carries no timestamp: window freshness is
// enforced by the store's TTL, so the same key is reused across windows and
// two callers in the same window always hit the same counter.
func KeyFor(tenantID, messageType string, w Window) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", tenantID, messageType, w)
}

func WindowSeconds(w Window) int {
	return int(WindowDuration(w) / time.Second)
}

func WindowDuration(w Window) time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	}
	return 0
}
