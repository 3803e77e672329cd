package vc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
)

type fakeTransport struct {
	mu           sync.Mutex
	input        string
	inputs       []string
	paused       bool
	muted        bool
	connected    bool
	restarts     int
	stops        int
	participants []Participant
	startErr     error
	stopErr      error
	ended        func()
	conn         func(bool)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{participants: []Participant{{UserID: 1, Self: true}, {UserID: 42}}}
}

func (f *fakeTransport) Start(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.connected = false
	return f.stopErr
}

func (f *fakeTransport) SetInput(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = path
	f.inputs = append(f.inputs, path)
	return nil
}

func (f *fakeTransport) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return nil
}

func (f *fakeTransport) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return nil
}

func (f *fakeTransport) Mute(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
	return nil
}

func (f *fakeTransport) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Participants(context.Context) ([]Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Participant(nil), f.participants...), nil
}

func (f *fakeTransport) OnTrackEnded(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = fn
}

func (f *fakeTransport) OnConnectionChanged(fn func(bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = fn
}

func (f *fakeTransport) setListeners(users ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = []Participant{{UserID: 1, Self: true}}
	for _, u := range users {
		f.participants = append(f.participants, Participant{UserID: u})
	}
}

// endTrack fires the end-of-file event the way the player does.
func (f *fakeTransport) endTrack() {
	f.mu.Lock()
	fn := f.ended
	f.mu.Unlock()
	fn()
}

func (f *fakeTransport) dropConnection() {
	f.mu.Lock()
	fn := f.conn
	f.mu.Unlock()
	fn(false)
}

func (f *fakeTransport) isPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeTransport) currentInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[int64]*fakeTransport
	prepare    func(chatID int64, t *fakeTransport)
}

func (f *fakeFactory) Transport(_ context.Context, chatID int64) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transports == nil {
		f.transports = make(map[int64]*fakeTransport)
	}
	t := newFakeTransport()
	if f.prepare != nil {
		f.prepare(chatID, t)
	}
	f.transports[chatID] = t
	return t, nil
}

func (f *fakeFactory) get(chatID int64) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[chatID]
}

type notice struct {
	chatID int64
	key    string
}

type fakeNotifier struct {
	mu       sync.Mutex
	playing  []string
	notices  []notice
	failures map[string]error
}

func (n *fakeNotifier) NowPlaying(_ int64, t *queue.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = append(n.playing, t.CacheKey)
}

func (n *fakeNotifier) Notice(chatID int64, key string, _ ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{chatID, key})
}

func (n *fakeNotifier) Failure(_ int64, t *queue.Track, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures == nil {
		n.failures = make(map[string]error)
	}
	n.failures[t.CacheKey] = err
}

func (n *fakeNotifier) failure(key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failures[key]
}

func (n *fakeNotifier) hasNotice(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, x := range n.notices {
		if x.key == key {
			return true
		}
	}
	return false
}

type okFetcher struct{}

func (okFetcher) Fetch(_ context.Context, _ string, dest string) (string, error) {
	p := dest + ".ogg"
	return p, os.WriteFile(p, []byte("ogg"), 0o600)
}

type noResolver struct{}

func (noResolver) Resolve(context.Context, string) (*dl.Item, error) {
	return nil, errors.New("no web access in tests")
}

func (noResolver) Download(context.Context, *dl.Item, string) (string, error) {
	return "", errors.New("no web access in tests")
}

// keyedTranscoder can hold or fail the transcode of chosen cache keys.
type keyedTranscoder struct {
	mu       sync.Mutex
	hold     map[string]bool
	fail     map[string]error
	started  atomic.Int32
	finished atomic.Int32
}

func (k *keyedTranscoder) Transcode(ctx context.Context, in, out string, _ bool) error {
	k.started.Add(1)
	defer k.finished.Add(1)
	key := strings.TrimSuffix(filepath.Base(out), ".raw.part")
	k.mu.Lock()
	hold, err := k.hold[key], k.fail[key]
	k.mu.Unlock()
	if hold {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	if _, err := os.Stat(in); err != nil {
		return err
	}
	return os.WriteFile(out, []byte("pcm"), 0o600)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	reg     *Registry
	acq     *dl.Acquirer
	tc      *keyedTranscoder
	factory *fakeFactory
	notify  *fakeNotifier
	clock   *fakeClock
	dir     string
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		tc:      &keyedTranscoder{hold: map[string]bool{}, fail: map[string]error{}},
		factory: &fakeFactory{},
		notify:  &fakeNotifier{},
		clock:   &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		dir:     t.TempDir(),
	}
	h.acq = dl.NewAcquirer(dl.AcquirerConfig{Dir: h.dir, Timeout: 2 * time.Second}, okFetcher{}, noResolver{}, h.tc, nil)
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.PrefetchTimeout == 0 {
		opts.PrefetchTimeout = 3 * time.Second
	}
	opts.Clock = h.clock.Now
	h.reg = NewRegistry(Deps{Transports: h.factory, Media: h.acq, Notifier: h.notify, Options: opts})
	h.reg.SetJanitor(dl.NewJanitor(h.dir, h.reg))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = h.reg.LeaveAll(ctx)
		// Let held transcodes give up before the temp dir goes away.
		for _, held := range h.tc.hold {
			if held {
				time.Sleep(2100 * time.Millisecond)
				break
			}
		}
	})
	return h
}

func (h *harness) join(t *testing.T, chatID int64) (*Session, *fakeTransport) {
	t.Helper()
	s, err := h.reg.Join(context.Background(), chatID, "test chat", 0)
	require.NoError(t, err)
	return s, h.factory.get(chatID)
}

func (h *harness) cached(key string) bool {
	_, err := os.Stat(filepath.Join(h.dir, dl.CacheFileName(key)))
	return err == nil
}

// files lists what is in the cache directory.
func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func upload(id int64, addedBy int64) *queue.Track {
	return queue.NewUpload(id, "ref", "song", 180, "", addedBy)
}

func keys(tracks []*queue.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.CacheKey)
	}
	return out
}
