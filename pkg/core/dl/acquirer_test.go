package dl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zuchzub/vcplayer/pkg/core/queue"
)

type stubFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, dest string) (string, error) {
	f.calls.Add(1)
	p := dest + ".ogg"
	if err := os.WriteFile(p, []byte("ogg"), 0o600); err != nil {
		return "", err
	}
	return p, f.err
}

type stubResolver struct {
	item       Item
	resolveErr error
	downloads  atomic.Int32
}

func (r *stubResolver) Resolve(context.Context, string) (*Item, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	it := r.item
	return &it, nil
}

func (r *stubResolver) Download(_ context.Context, _ *Item, dest string) (string, error) {
	r.downloads.Add(1)
	p := dest + ".webm"
	return p, os.WriteFile(p, []byte("webm"), 0o600)
}

type stubTranscoder struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func (s *stubTranscoder) Transcode(_ context.Context, in, out string, _ bool) error {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		_ = os.WriteFile(out, []byte("half"), 0o600)
		return s.err
	}
	if _, err := os.Stat(in); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("pcm"), 0o600)
}

type stubProber struct{ seconds int }

func (p stubProber) Duration(context.Context, string) (int, error) { return p.seconds, nil }

func newTestAcquirer(t *testing.T, f Fetcher, r Resolver, tc Transcoder, p Prober) *Acquirer {
	t.Helper()
	return NewAcquirer(AcquirerConfig{Dir: t.TempDir(), Timeout: 5 * time.Second}, f, r, tc, p)
}

// onlyCacheFiles lists dir and fails on any leftover intermediate file.
func onlyCacheFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
		assert.True(t, IsCacheFile(e.Name()), "unexpected file %s", e.Name())
	}
	return names
}

func TestAcquireUpload(t *testing.T) {
	f := &stubFetcher{}
	tc := &stubTranscoder{}
	a := newTestAcquirer(t, f, &stubResolver{}, tc, nil)
	tr := queue.NewUpload(99, "ref", "song", 30, "", 1)

	p, err := a.Acquire(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.Dir(), "TG_99.raw"), p)
	assert.Equal(t, []string{"TG_99.raw"}, onlyCacheFiles(t, a.Dir()))

	// fast path
	_, err = a.Acquire(context.Background(), tr)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.EqualValues(t, 1, tc.calls.Load())
}

func TestAcquireConcurrentSameKey(t *testing.T) {
	r := &stubResolver{item: Item{Prefix: "YT", ID: "abc", Duration: 100, Target: "u"}}
	tc := &stubTranscoder{gate: make(chan struct{})}
	a := newTestAcquirer(t, &stubFetcher{}, r, tc, nil)
	tr := queue.NewWeb("YT", "abc", "song", 100, "https://youtu.be/abc", 1)
	same := queue.NewWeb("YT", "abc", "song", 100, "https://youtu.be/abc", 2)

	var wg sync.WaitGroup
	paths := make([]string, 2)
	errs := make([]error, 2)
	for i, track := range []*queue.Track{tr, same} {
		wg.Add(1)
		go func(i int, track *queue.Track) {
			defer wg.Done()
			paths[i], errs[i] = a.Acquire(context.Background(), track)
		}(i, track)
	}

	require.Eventually(t, func() bool { return tc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(tc.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, paths[0], paths[1])
	assert.EqualValues(t, 1, tc.calls.Load())
	assert.EqualValues(t, 1, r.downloads.Load())
	assert.Equal(t, []string{"YT_abc.raw"}, onlyCacheFiles(t, a.Dir()))
}

func TestAcquireDurationExceededBeforeDownload(t *testing.T) {
	r := &stubResolver{item: Item{Prefix: "YT", ID: "long", Duration: 5000}}
	a := newTestAcquirer(t, &stubFetcher{}, r, &stubTranscoder{}, nil)
	tr := queue.NewWeb("YT", "long", "long one", 0, "https://youtu.be/long", 1)
	tr.Limit = 900

	_, err := a.Acquire(context.Background(), tr)
	assert.ErrorIs(t, err, ErrDurationExceeded)
	assert.EqualValues(t, 0, r.downloads.Load())
	assert.Empty(t, onlyCacheFiles(t, a.Dir()))
}

func TestAcquireProbesUnknownDuration(t *testing.T) {
	r := &stubResolver{item: Item{Prefix: "WEB", ID: "x", Duration: 0}}
	tc := &stubTranscoder{}
	a := newTestAcquirer(t, &stubFetcher{}, r, tc, stubProber{seconds: 1200})
	tr := queue.NewWeb("WEB", "x", "file.mp3", 0, "https://a.b/file.mp3", 1)
	tr.Limit = 900

	_, err := a.Acquire(context.Background(), tr)
	assert.ErrorIs(t, err, ErrDurationExceeded)
	assert.EqualValues(t, 0, tc.calls.Load())
	assert.Empty(t, onlyCacheFiles(t, a.Dir()))
}

func TestAcquireFailuresLeaveNothingBehind(t *testing.T) {
	t.Run("resolution", func(t *testing.T) {
		r := &stubResolver{resolveErr: errors.New("404")}
		a := newTestAcquirer(t, &stubFetcher{}, r, &stubTranscoder{}, nil)
		_, err := a.Acquire(context.Background(), queue.NewWeb("YT", "a", "a", 1, "u", 1))
		assert.ErrorIs(t, err, ErrResolutionFailed)
	})

	t.Run("download", func(t *testing.T) {
		f := &stubFetcher{err: errors.New("connection reset")}
		a := newTestAcquirer(t, f, &stubResolver{}, &stubTranscoder{}, nil)
		_, err := a.Acquire(context.Background(), queue.NewUpload(1, "ref", "a", 1, "", 1))
		assert.ErrorIs(t, err, ErrDownloadFailed)
		assert.Empty(t, onlyCacheFiles(t, a.Dir()))
	})

	t.Run("transcode", func(t *testing.T) {
		tc := &stubTranscoder{err: errors.New("invalid data")}
		a := newTestAcquirer(t, &stubFetcher{}, &stubResolver{}, tc, nil)
		_, err := a.Acquire(context.Background(), queue.NewUpload(2, "ref", "a", 1, "", 1))
		assert.ErrorIs(t, err, ErrTranscodeFailed)
		assert.Empty(t, onlyCacheFiles(t, a.Dir()))
	})

	t.Run("upload too long", func(t *testing.T) {
		f := &stubFetcher{}
		a := newTestAcquirer(t, f, &stubResolver{}, &stubTranscoder{}, nil)
		tr := queue.NewUpload(3, "ref", "a", 1000, "", 1)
		tr.Limit = 900
		_, err := a.Acquire(context.Background(), tr)
		assert.ErrorIs(t, err, ErrDurationExceeded)
		assert.EqualValues(t, 0, f.calls.Load())
	})
}

func TestWaitResidentTimesOut(t *testing.T) {
	// the gate is never opened; the background acquisition stays parked
	tc := &stubTranscoder{gate: make(chan struct{})}
	a := newTestAcquirer(t, &stubFetcher{}, &stubResolver{}, tc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.WaitResident(ctx, queue.NewUpload(5, "ref", "slow", 1, "", 1), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestWaitResidentPicksUpFile(t *testing.T) {
	// the gate is never opened; the background acquisition stays parked
	tc := &stubTranscoder{gate: make(chan struct{})}
	a := newTestAcquirer(t, &stubFetcher{}, &stubResolver{}, tc, nil)
	tr := queue.NewUpload(6, "ref", "x", 1, "", 1)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(a.Path(tr.CacheKey), []byte("pcm"), 0o600)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := a.WaitResident(ctx, tr, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, a.Path(tr.CacheKey), p)
}

func TestAcquireStopsWhenEveryCallerGivesUp(t *testing.T) {
	tc := &stubTranscoder{gate: make(chan struct{})}
	a := newTestAcquirer(t, &stubFetcher{}, &stubResolver{}, tc, nil)
	tr := queue.NewUpload(7, "ref", "gone", 1, "", 1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := a.Acquire(ctx, tr)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return tc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// The first transcode finishes after nobody wants it; its output is thrown away
	// and the next caller gets a production of its own.
	close(tc.gate)
	p, err := a.Acquire(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, a.Path(tr.CacheKey), p)
	assert.EqualValues(t, 2, tc.calls.Load())
	assert.Equal(t, []string{"TG_7.raw"}, onlyCacheFiles(t, a.Dir()))
}

func TestAcquireKeepsGoingForRemainingCaller(t *testing.T) {
	tc := &stubTranscoder{gate: make(chan struct{})}
	a := newTestAcquirer(t, &stubFetcher{}, &stubResolver{}, tc, nil)
	tr := queue.NewUpload(8, "ref", "shared", 1, "", 1)

	quitter, cancel := context.WithCancel(context.Background())
	quitErr := make(chan error, 1)
	go func() {
		_, err := a.Acquire(quitter, tr)
		quitErr <- err
	}()
	require.Eventually(t, func() bool { return tc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stayed := make(chan error, 1)
	go func() {
		_, err := a.Acquire(context.Background(), tr)
		stayed <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-quitErr, context.Canceled)

	close(tc.gate)
	require.NoError(t, <-stayed)
	assert.EqualValues(t, 1, tc.calls.Load())
	assert.Equal(t, []string{"TG_8.raw"}, onlyCacheFiles(t, a.Dir()))
}
