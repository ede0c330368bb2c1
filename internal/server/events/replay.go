package events

import (
	"sort"
	"sync"
)

// ReplayLog retains the last N published events per project so a
// reconnecting stream client can resume from its last seen sequence.
// Unscoped events are kept in their own bucket and count toward every
// project's replay. Retention is bounded per bucket; when an event falls
// out of a bucket the log remembers the highest evicted sequence so a
// resume that predates retention is reported as a gap instead of being
// silently skipped.
type ReplayLog struct {
	mu      sync.Mutex
	size    int
	buckets map[string]*replayBucket
}

type replayBucket struct {
	events []Event
	// evictedThrough is the highest sequence dropped from this bucket.
	evictedThrough int64
}

// NewReplayLog creates a replay log retaining up to size events per project.
func NewReplayLog(size int) *ReplayLog {
	if size < 1 {
		size = 1
	}
	return &ReplayLog{
		size:    size,
		buckets: make(map[string]*replayBucket),
	}
}

// Append stores a published event in its project's bucket. Events arrive in
// sequence order because Publish serializes assignment and append.
func (l *ReplayLog) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[ev.ProjectID]
	if !ok {
		b = &replayBucket{events: make([]Event, 0, l.size)}
		l.buckets[ev.ProjectID] = b
	}
	b.events = append(b.events, ev)
	if len(b.events) > l.size {
		b.evictedThrough = b.events[0].Sequence
		b.events = b.events[1:]
	}
}

// Since returns every retained event with sequence greater than after,
// in sequence order. For a project-scoped request it merges the project's
// bucket with the unscoped bucket; without a project it merges all buckets.
// If any relevant bucket has evicted an event newer than after, continuity
// cannot be guaranteed: Since returns gap=true and no events.
func (l *ReplayLog) Since(projectID string, after int64) (replayed []Event, gap bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buckets []*replayBucket
	if projectID != "" {
		if b, ok := l.buckets[projectID]; ok {
			buckets = append(buckets, b)
		}
		if b, ok := l.buckets[""]; ok {
			buckets = append(buckets, b)
		}
	} else {
		for _, b := range l.buckets {
			buckets = append(buckets, b)
		}
	}

	for _, b := range buckets {
		if b.evictedThrough > after {
			return nil, true
		}
	}

	for _, b := range buckets {
		for _, ev := range b.events {
			if ev.Sequence > after {
				replayed = append(replayed, ev)
			}
		}
	}
	sort.Slice(replayed, func(i, j int) bool {
		return replayed[i].Sequence < replayed[j].Sequence
	})
	return replayed, false
}

// OldestRetained returns the smallest retained sequence across the buckets
// relevant to projectID, or 0 when nothing is retained. Used in gap frames
// so clients know where the continuous history restarts.
func (l *ReplayLog) OldestRetained(projectID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var oldest int64
	consider := func(b *replayBucket) {
		if len(b.events) == 0 {
			return
		}
		if first := b.events[0].Sequence; oldest == 0 || first < oldest {
			oldest = first
		}
	}
	if projectID != "" {
		if b, ok := l.buckets[projectID]; ok {
			consider(b)
		}
		if b, ok := l.buckets[""]; ok {
			consider(b)
		}
	} else {
		for _, b := range l.buckets {
			consider(b)
		}
	}
	return oldest
}
