package realtime

import "time"

// Instant is a wall-clock moment as Unix epoch milliseconds. Every
// timestamp crossing the store boundary is normalized to this one
// representation so nothing downstream has to care what shape the
// backend returned.
type Instant = int64

func NowMS() Instant { return time.Now().UnixMilli() }

func ToInstant(t time.Time) Instant {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// AgeMS returns now-then, floored at zero so a slightly-ahead source
// clock never produces a negative age.
func AgeMS(now, then Instant) int64 {
	if then <= 0 || now <= then {
		return 0
	}
	return now - then
}
