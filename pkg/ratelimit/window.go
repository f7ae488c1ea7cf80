package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow counts requests over a rolling time period.
//
// The window is backed by a circular buffer of coarse buckets. Buckets
// older than the window duration are pruned on every operation, so the
// count never includes requests that have already aged out.
//
// # Memory
//
// The buffer holds window/bucketSize buckets. A 1-minute window with
// 1-second buckets keeps 60 counters per tracked key.
//
// SlidingWindow is safe for concurrent use.
type SlidingWindow struct {
	window     time.Duration
	bucketSize time.Duration
	buckets    []bucket
	head       int
	now        func() time.Time
	mu         sync.Mutex
}

// bucket is a single time-stamped counter slot.
type bucket struct {
	timestamp time.Time
	value     int64
}

// NewSlidingWindow creates a sliding window counter covering the given
// duration at the given bucket granularity.
//
// Example:
//
//	// 1-minute window with 1-second buckets (60 buckets)
//	sw := NewSlidingWindow(time.Minute, time.Second)
func NewSlidingWindow(window time.Duration, bucketSize time.Duration) *SlidingWindow {
	numBuckets := int(window / bucketSize)
	if numBuckets == 0 {
		numBuckets = 1
	}

	return &SlidingWindow{
		window:     window,
		bucketSize: bucketSize,
		buckets:    make([]bucket, numBuckets),
		now:        time.Now,
	}
}

// Admit counts one request if the window total is below limit. It returns
// the total after the check and whether the request was admitted. Rejected
// requests are not counted against the window.
func (sw *SlidingWindow) Admit(limit int64) (int64, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.pruneLocked(now)

	used := sw.sumLocked()
	if used >= limit {
		return used, false
	}

	b := sw.findOrCreateBucketLocked(now)
	b.value++
	return used + 1, true
}

// Sum returns the total count across all buckets still inside the window.
func (sw *SlidingWindow) Sum() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(sw.now())
	return sw.sumLocked()
}

// NextExpiry returns when the oldest counted bucket leaves the window.
// It returns the zero time when the window is empty.
func (sw *SlidingWindow) NextExpiry() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(sw.now())

	var oldest time.Time
	for i := range sw.buckets {
		if sw.buckets[i].timestamp.IsZero() || sw.buckets[i].value == 0 {
			continue
		}
		if oldest.IsZero() || sw.buckets[i].timestamp.Before(oldest) {
			oldest = sw.buckets[i].timestamp
		}
	}

	if oldest.IsZero() {
		return time.Time{}
	}
	return oldest.Add(sw.window)
}

// sumLocked sums all live buckets. Caller must hold mu.
func (sw *SlidingWindow) sumLocked() int64 {
	var sum int64
	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() {
			sum += sw.buckets[i].value
		}
	}
	return sum
}

// pruneLocked clears buckets older than the window. Caller must hold mu.
func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.window)

	for i := range sw.buckets {
		if !sw.buckets[i].timestamp.IsZero() && sw.buckets[i].timestamp.Before(cutoff) {
			sw.buckets[i] = bucket{}
		}
	}
}

// findOrCreateBucketLocked returns the bucket covering now, creating it in
// an empty slot or evicting the oldest one. Caller must hold mu.
func (sw *SlidingWindow) findOrCreateBucketLocked(now time.Time) *bucket {
	bucketTime := now.Truncate(sw.bucketSize)

	// Fast path: the most recent write usually lands in the same bucket.
	if sw.buckets[sw.head].timestamp.Equal(bucketTime) {
		return &sw.buckets[sw.head]
	}

	for i := range sw.buckets {
		if sw.buckets[i].timestamp.Equal(bucketTime) {
			return &sw.buckets[i]
		}
	}

	targetIdx := -1
	for i := range sw.buckets {
		if sw.buckets[i].timestamp.IsZero() {
			targetIdx = i
			break
		}
	}

	if targetIdx == -1 {
		oldestIdx := 0
		oldestTime := sw.buckets[0].timestamp
		for i := 1; i < len(sw.buckets); i++ {
			if sw.buckets[i].timestamp.Before(oldestTime) {
				oldestIdx = i
				oldestTime = sw.buckets[i].timestamp
			}
		}
		targetIdx = oldestIdx
	}

	sw.buckets[targetIdx] = bucket{timestamp: bucketTime}
	sw.head = targetIdx

	return &sw.buckets[targetIdx]
}
