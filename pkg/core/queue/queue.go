package queue

import (
	"errors"
	"slices"
)

var (
	ErrQueueFull     = errors.New("queue is full")
	ErrDuplicateTail = errors.New("track is already at the end of the queue")
	ErrInvalidIndex  = errors.New("no track at that position")
)

// DefaultMax is the queue length used when a chat has no setting of its own.
const DefaultMax = 8

// Queue is an ordered list of tracks where index 0 is the one playing.
// It is not safe for concurrent use; a session owns its queue.
type Queue struct {
	items []*Track
	max   int
}

// New returns an empty queue holding at most max tracks.
func New(max int) *Queue {
	if max < 1 {
		max = DefaultMax
	}
	return &Queue{max: max}
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Max() int { return q.max }

// SetMax changes the limit. Tracks already queued beyond it are kept.
func (q *Queue) SetMax(n int) {
	if n >= 1 {
		q.max = n
	}
}

// Front returns the playing track or nil.
func (q *Queue) Front() *Track {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// At returns the track at i or nil.
func (q *Queue) At(i int) *Track {
	if i < 0 || i >= len(q.items) {
		return nil
	}
	return q.items[i]
}

// Items returns a copy of the queue contents.
func (q *Queue) Items() []*Track {
	return slices.Clone(q.items)
}

// Lookahead returns the tracks whose cache files must stay on disk: the playing one and the next.
func (q *Queue) Lookahead() []*Track {
	n := min(2, len(q.items))
	return slices.Clone(q.items[:n])
}

// TryAppend adds t at the end. It fails when the queue is full or when t repeats the current tail.
func (q *Queue) TryAppend(t *Track) error {
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	if n := len(q.items); n > 0 && q.items[n-1].CacheKey == t.CacheKey {
		return ErrDuplicateTail
	}
	q.items = append(q.items, t)
	return nil
}

// Remove takes out the track at index i. The playing track (index 0) cannot be removed this way.
func (q *Queue) Remove(i int) (*Track, bool) {
	if i < 1 || i >= len(q.items) {
		return nil, false
	}
	t := q.items[i]
	q.items = slices.Delete(q.items, i, i+1)
	return t, true
}

// PopFront removes and returns the playing track.
func (q *Queue) PopFront() (*Track, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

// Discard removes t wherever it is, including index 0. It is the rollback path for a
// track whose media could not be acquired.
func (q *Queue) Discard(t *Track) bool {
	i := q.IndexOf(t)
	if i < 0 {
		return false
	}
	q.items = slices.Delete(q.items, i, i+1)
	return true
}

// IndexOf finds t by identity.
func (q *Queue) IndexOf(t *Track) int {
	for i, it := range q.items {
		if it == t {
			return i
		}
	}
	return -1
}

// Clear empties the queue and returns what it held.
func (q *Queue) Clear() []*Track {
	old := q.items
	q.items = nil
	return old
}

// Removal is the outcome of one index in a bulk removal.
type Removal struct {
	Index int
	Track *Track
	Err   error
}

// RemoveMany removes several indices at once. Duplicates are dropped and indices are
// handled from the highest down, so every reported track is the one that sat at that
// index before the call. allow, when set, may veto a single removal.
func (q *Queue) RemoveMany(indices []int, allow func(t *Track) error) []Removal {
	uniq := slices.Clone(indices)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	slices.Reverse(uniq)

	out := make([]Removal, 0, len(uniq))
	for _, i := range uniq {
		t := q.At(i)
		if i < 1 || t == nil {
			out = append(out, Removal{Index: i, Err: ErrInvalidIndex})
			continue
		}
		if allow != nil {
			if err := allow(t); err != nil {
				out = append(out, Removal{Index: i, Track: t, Err: err})
				continue
			}
		}
		q.Remove(i)
		out = append(out, Removal{Index: i, Track: t})
	}
	return out
}
