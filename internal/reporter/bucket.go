// Copyright 2026 The Isopod Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"fmt"
	"time"
)

// TakeBlocked is returned by Bucket.Take when no token is currently
// available; SecondsRemaining is how long the caller should wait before
// retrying.
type TakeBlocked struct {
	SecondsRemaining float64
}

func (e *TakeBlocked) Error() string {
	return fmt.Sprintf("bucket: blocked for %.2fs", e.SecondsRemaining)
}

// Bucket is a token bucket that additionally enforces a minimum delay
// between consecutive takes regardless of how many tokens are available —
// suited to a display that can tolerate frequent status changes but not a
// rapid refresh cadence.
type Bucket struct {
	capacity   int
	fillDelay  time.Duration
	burstDelay time.Duration
	now        func() time.Time

	takeTime      time.Time
	takeRemaining float64
}

// NewBucket constructs a Bucket with capacity tokens, refilling one token
// every fillDelay and never allowing two takes closer than burstDelay apart.
func NewBucket(capacity int, fillDelay, burstDelay time.Duration, now func() time.Time) *Bucket {
	if capacity < 1 {
		panic("reporter: bucket capacity must be at least 1")
	}
	if fillDelay <= 0 {
		panic("reporter: bucket fill delay must be greater than 0")
	}
	if now == nil {
		now = time.Now
	}
	return &Bucket{
		capacity:      capacity,
		fillDelay:     fillDelay,
		burstDelay:    burstDelay,
		now:           now,
		takeRemaining: float64(capacity),
	}
}

func (b *Bucket) available(at time.Time) float64 {
	sinceTake := at.Sub(b.takeTime)
	tokensSinceTake := sinceTake.Seconds() / b.fillDelay.Seconds()
	available := b.takeRemaining + tokensSinceTake
	if available > float64(b.capacity) {
		available = float64(b.capacity)
	}
	return available
}

// Take consumes exactly one token, or returns *TakeBlocked naming how long
// the caller must wait before a token (and the burst spacing) will allow it.
func (b *Bucket) Take() error {
	now := b.now()
	available := b.available(now)
	sinceTake := now.Sub(b.takeTime)

	var delays []time.Duration
	if available < 1 {
		tokensMissing := 1 - available
		delays = append(delays, time.Duration(tokensMissing*float64(b.fillDelay)))
	}
	if sinceTake < b.burstDelay {
		delays = append(delays, b.burstDelay-sinceTake)
	}

	if len(delays) > 0 {
		max := delays[0]
		for _, d := range delays[1:] {
			if d > max {
				max = d
			}
		}
		return &TakeBlocked{SecondsRemaining: max.Seconds()}
	}

	b.takeTime = now
	b.takeRemaining = available - 1
	return nil
}

// SecondsUntilFull reports how long until the bucket refills to capacity if
// no further Take occurs.
func (b *Bucket) SecondsUntilFull() float64 {
	now := b.now()
	available := b.available(now)
	required := float64(b.capacity) - available
	return required * b.fillDelay.Seconds()
}
