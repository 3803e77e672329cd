package vc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuchzub/vcplayer/pkg/core/queue"
)

func TestRegistryOneSessionPerChat(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	s, _ := h.join(t, -100)
	_, err := h.reg.Join(ctx, -100, "again", 0)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	got, ok := h.reg.Get(-100)
	require.True(t, ok)
	assert.Same(t, s, got)

	require.NoError(t, h.reg.Leave(ctx, -100))
	_, ok = h.reg.Get(-100)
	assert.False(t, ok)
	assert.Equal(t, 1, h.factory.get(-100).stops)
	assert.ErrorIs(t, h.reg.Leave(ctx, -100), ErrNotJoined)

	_, err = h.reg.Join(ctx, -100, "back", 0)
	assert.NoError(t, err)
}

func TestRegistryJoinFailureLeavesNoSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.factory.prepare = func(_ int64, tr *fakeTransport) { tr.startErr = errors.New("no voice chat") }

	_, err := h.reg.Join(context.Background(), -100, "chat", 0)
	require.Error(t, err)
	_, ok := h.reg.Get(-100)
	assert.False(t, ok)
	assert.Zero(t, h.reg.Len())
}

func TestRegistryLeaveAllToleratesFailures(t *testing.T) {
	h := newHarness(t, Options{})
	h.factory.prepare = func(chatID int64, tr *fakeTransport) {
		if chatID == -200 {
			tr.stopErr = errors.New("already gone")
		}
	}
	for _, id := range []int64{-100, -200, -300} {
		h.join(t, id)
	}

	left, err := h.reg.LeaveAll(context.Background())
	assert.Equal(t, 2, left)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat -200")
	assert.Zero(t, h.reg.Len())
}

func TestRegistryCacheKeysInUse(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	a, _ := h.join(t, -100)
	b, _ := h.join(t, -200)

	for i := int64(1); i <= 3; i++ {
		_, err := a.Enqueue(ctx, upload(i, 7))
		require.NoError(t, err)
	}
	_, err := b.Enqueue(ctx, upload(10, 7))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"TG_1", "TG_2", "TG_10"}, h.reg.CacheKeysInUse())

	ids := make([]int64, 0, 2)
	for _, s := range h.reg.All() {
		ids = append(ids, s.ChatID())
	}
	assert.Equal(t, []int64{-200, -100}, ids)
}

func TestRegistrySharedCacheFileOutlivesOneChat(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	a, _ := h.join(t, -100)
	b, trB := h.join(t, -200)

	_, err := a.Enqueue(ctx, upload(1, 7))
	require.NoError(t, err)
	_, err = a.Enqueue(ctx, upload(2, 7))
	require.NoError(t, err)
	_, err = b.Enqueue(ctx, upload(1, 8))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.cached("TG_2") }, waitFor, tick)

	// Chat A moves past the shared track and cleans up.
	_, err = a.Skip(ctx, SkipRequest{UserID: 7})
	require.NoError(t, err)
	require.Equal(t, []string{"TG_2"}, keys(a.Status().Tracks))
	_, err = h.reg.Reclaim()
	require.NoError(t, err)

	assert.True(t, h.cached("TG_1"))
	st := b.Status()
	assert.Equal(t, []string{"TG_1"}, keys(st.Tracks))
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, h.acq.Path("TG_1"), trB.currentInput())

	require.NoError(t, b.Stop(ctx))
	assert.Eventually(t, func() bool { return !h.cached("TG_1") }, waitFor, tick)
	assert.True(t, h.cached("TG_2"))
}

func TestRegistryCheckpointRoundTrip(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	s, _ := h.join(t, -100)
	h.join(t, -200)

	for i := int64(1); i <= 3; i++ {
		_, err := s.Enqueue(ctx, upload(i, 7))
		require.NoError(t, err)
	}
	require.NoError(t, s.SetMax(ctx, 5))

	cps := h.reg.Checkpoints()
	require.Len(t, cps, 1)
	assert.Equal(t, int64(-100), cps[0].ChatID)
	assert.Equal(t, 5, cps[0].Max)
	assert.Equal(t, []string{"TG_1", "TG_2", "TG_3"}, keys(cps[0].Tracks))

	_, err := h.reg.LeaveAll(ctx)
	require.NoError(t, err)

	require.NoError(t, h.reg.Restore(ctx, cps))
	restored, ok := h.reg.Get(-100)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st := restored.Status()
		return len(st.Tracks) == 3 && st.State == Playing
	}, waitFor, tick)
	st := restored.Status()
	assert.Equal(t, []string{"TG_1", "TG_2", "TG_3"}, keys(st.Tracks))
	assert.Equal(t, 5, st.Max)
}

func TestRegistryRestoreReportsJoinErrors(t *testing.T) {
	h := newHarness(t, Options{})
	h.factory.prepare = func(chatID int64, tr *fakeTransport) {
		if chatID == -300 {
			tr.startErr = errors.New("voice chat closed")
		}
	}
	cps := []queue.Checkpoint{
		{ChatID: -100, ChatTitle: "ok", Tracks: []*queue.Track{upload(1, 7)}},
		{ChatID: -300, ChatTitle: "closed", Tracks: []*queue.Track{upload(2, 7)}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.reg.Restore(ctx, cps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat -300")
	_, ok := h.reg.Get(-100)
	assert.True(t, ok)
}
