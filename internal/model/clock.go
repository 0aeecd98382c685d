package model

import "time"

// Clock abstracts time for the operation surface so every operation is
// deterministic under a frozen clock in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock, truncated to seconds in UTC to match the
// on-disk timestamp resolution.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// FixedClock always returns the same instant. Test helper.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
