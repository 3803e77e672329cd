package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func web(id string) *Track {
	return NewWeb("YT", id, "title "+id, 60, "https://youtu.be/"+id, 1)
}

func fill(t *testing.T, q *Queue, n int) []*Track {
	t.Helper()
	var out []*Track
	for i := 0; i < n; i++ {
		tr := web(fmt.Sprintf("t%d", i))
		require.NoError(t, q.TryAppend(tr))
		out = append(out, tr)
	}
	return out
}

func TestTryAppendFull(t *testing.T) {
	q := New(8)
	fill(t, q, 8)

	before := q.Items()
	err := q.TryAppend(web("extra"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, before, q.Items())
	assert.Equal(t, 8, q.Len())
}

func TestTryAppendDuplicateTail(t *testing.T) {
	q := New(8)
	a, b := web("a"), web("b")
	require.NoError(t, q.TryAppend(a))

	assert.ErrorIs(t, q.TryAppend(web("a")), ErrDuplicateTail)
	require.NoError(t, q.TryAppend(b))
	// the same key is fine once something else is at the tail
	require.NoError(t, q.TryAppend(web("a")))
	assert.Equal(t, 3, q.Len())
}

func TestRemoveNeverTakesHead(t *testing.T) {
	q := New(8)
	tracks := fill(t, q, 3)

	_, ok := q.Remove(0)
	assert.False(t, ok)
	_, ok = q.Remove(3)
	assert.False(t, ok)

	got, ok := q.Remove(1)
	require.True(t, ok)
	assert.Same(t, tracks[1], got)
	assert.Equal(t, []*Track{tracks[0], tracks[2]}, q.Items())
}

func TestPopFrontAndClear(t *testing.T) {
	q := New(4)
	tracks := fill(t, q, 2)

	got, ok := q.PopFront()
	require.True(t, ok)
	assert.Same(t, tracks[0], got)
	assert.Same(t, tracks[1], q.Front())

	assert.Len(t, q.Clear(), 1)
	assert.Equal(t, 0, q.Len())
	_, ok = q.PopFront()
	assert.False(t, ok)
	assert.Nil(t, q.Front())
}

func TestRemoveManyOrderAndDedup(t *testing.T) {
	q := New(8)
	tracks := fill(t, q, 6)

	res := q.RemoveMany([]int{5, 2, 2, 99}, nil)
	require.Len(t, res, 3)

	assert.Equal(t, 99, res[0].Index)
	assert.ErrorIs(t, res[0].Err, ErrInvalidIndex)

	assert.Equal(t, 5, res[1].Index)
	assert.NoError(t, res[1].Err)
	assert.Same(t, tracks[5], res[1].Track)

	assert.Equal(t, 2, res[2].Index)
	assert.NoError(t, res[2].Err)
	assert.Same(t, tracks[2], res[2].Track)

	assert.Equal(t, []*Track{tracks[0], tracks[1], tracks[3], tracks[4]}, q.Items())
}

func TestRemoveManyVeto(t *testing.T) {
	q := New(8)
	tracks := fill(t, q, 4)
	tracks[2].AddedBy = 42
	denied := fmt.Errorf("denied")

	res := q.RemoveMany([]int{0, 2, 3}, func(tr *Track) error {
		if tr.AddedBy != 42 {
			return denied
		}
		return nil
	})
	require.Len(t, res, 3)
	assert.ErrorIs(t, res[0].Err, denied)
	assert.NoError(t, res[1].Err)
	assert.ErrorIs(t, res[2].Err, ErrInvalidIndex)
	assert.Equal(t, 3, q.Len())
}

func TestDiscardAndLookahead(t *testing.T) {
	q := New(8)
	tracks := fill(t, q, 3)
	assert.Equal(t, tracks[:2], q.Lookahead())

	assert.True(t, q.Discard(tracks[0]))
	assert.False(t, q.Discard(tracks[0]))
	assert.Same(t, tracks[1], q.Front())
	assert.Equal(t, -1, q.IndexOf(tracks[0]))
}

func TestSetMax(t *testing.T) {
	q := New(0)
	assert.Equal(t, DefaultMax, q.Max())
	fill(t, q, 3)
	q.SetMax(2)
	assert.Equal(t, 3, q.Len())
	assert.ErrorIs(t, q.TryAppend(web("x")), ErrQueueFull)
	q.SetMax(0)
	assert.Equal(t, 2, q.Max())
}

func TestTrackKeys(t *testing.T) {
	up := NewUpload(123456, "file-ref", "song.mp3", 30, "https://t.me/c/1/2", 7)
	assert.Equal(t, "TG_123456", up.CacheKey)
	assert.Equal(t, ChatUpload, up.Origin)
	assert.NoError(t, up.Valid())

	w := NewWeb("yt", "dQw4w9WgXcQ", "x", 212, "https://youtu.be/dQw4w9WgXcQ", 7)
	assert.Equal(t, "YT_dQw4w9WgXcQ", w.CacheKey)
	assert.Equal(t, "web", w.Origin.String())

	odd := NewWeb("sc", "user/some track", "x", 1, "https://soundcloud.com/user/some-track", 7)
	assert.Equal(t, "SC_user-some-track", odd.CacheKey)
	assert.NoError(t, odd.Valid())

	assert.Error(t, (&Track{Origin: WebSearch, CacheKey: "a/b", Locator: "x"}).Valid())
	assert.Error(t, (&Track{Origin: 9, CacheKey: "a", Locator: "x"}).Valid())
}
