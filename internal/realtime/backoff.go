package realtime

import "time"

// Policy is a reusable capped exponential backoff description. It is a
// pure value: NextDelay does no sleeping and holds no state, so retry
// loops stay testable without a fake clock.
type Policy struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts int
}

func DefaultJoinPolicy() Policy {
	return Policy{Base: 500 * time.Millisecond, Factor: 2, Cap: 8 * time.Second, MaxAttempts: 6}
}

// NextDelay returns the delay before attempt n (1-based). Attempt 1 waits
// Base; each further attempt multiplies by Factor up to Cap.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Base
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.Cap {
			return p.Cap
		}
	}
	if time.Duration(d) > p.Cap {
		return p.Cap
	}
	return time.Duration(d)
}

// Exhausted reports whether attempt n exceeds the configured ceiling. A
// zero MaxAttempts means unbounded.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
