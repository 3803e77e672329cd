package vc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/queue"

	"github.com/Laky-64/gologging"
)

const presenceTimeout = 10 * time.Second

// Session is the playback state of one chat. Every change runs on the session's own
// goroutine; readers use Status, which never waits for it.
type Session struct {
	chatID   int64
	title    string
	joinedAt time.Time

	transport Transport
	media     MediaSource
	notify    Notifier
	janitor   func() Reclaimer
	opts      Options

	// Owned by the loop goroutine.
	q           *queue.Queue
	state       State
	startedAt   time.Time
	finished    bool
	muted       bool
	headGen     uint64
	headWait    context.CancelFunc
	waiters     map[*queue.Track]chan error
	prefetching map[string]*prefetchJob

	// inputGen changes whenever the stream input does, so a late end-of-track
	// event for a replaced input can be told apart.
	inputGen atomic.Uint64

	events chan func()
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	onExit func(*Session)

	viewMu sync.RWMutex
	view   Status
}

func newSession(chatID int64, title string, t Transport, deps *Deps, maxLen int) *Session {
	opts := deps.Options.withDefaults()
	if maxLen < 1 {
		maxLen = opts.MaxQueueLength
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		chatID:      chatID,
		title:       title,
		joinedAt:    opts.Clock(),
		transport:   t,
		media:       deps.Media,
		notify:      deps.Notifier,
		opts:        opts,
		q:           queue.New(maxLen),
		waiters:     make(map[*queue.Track]chan error),
		prefetching: make(map[string]*prefetchJob),
		events:      make(chan func(), 64),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.publish()
	return s
}

// start wires the transport callbacks and launches the loop.
func (s *Session) start() {
	s.transport.OnTrackEnded(s.trackEnded)
	s.transport.OnConnectionChanged(func(connected bool) {
		if connected {
			gologging.DebugF("[Session %d] Transport reconnected.", s.chatID)
			return
		}
		s.post(s.connectionLost)
	})
	go s.run()
}

func (s *Session) run() {
	defer func() {
		s.cancel()
		for t, ch := range s.waiters {
			ch <- ErrNotJoined
			delete(s.waiters, t)
		}
		if s.onExit != nil {
			s.onExit(s)
		}
		s.reclaim()
		close(s.done)
	}()

	for {
		fn := <-s.events
		fn()
		s.settleWaiters()
		s.publish()
		if s.state == Disconnected {
			return
		}
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	select {
	case s.events <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrNotJoined
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrNotJoined
		}
	}
}

// post queues fn without waiting for it to run.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	default:
		go func() {
			select {
			case s.events <- fn:
			case <-s.done:
			}
		}()
	}
}

func (s *Session) now() time.Time { return s.opts.Clock() }

func (s *Session) ChatID() int64 { return s.chatID }

// Done is closed once the session has left the call.
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the latest published state.
func (s *Session) Status() Status {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	v := s.view
	v.Tracks = slices.Clone(v.Tracks)
	return v
}

func (s *Session) publish() {
	v := Status{
		ChatID:    s.chatID,
		ChatTitle: s.title,
		State:     s.state,
		Tracks:    s.q.Items(),
		Max:       s.q.Max(),
		StartedAt: s.startedAt,
		JoinedAt:  s.joinedAt,
		Muted:     s.muted,
		Finished:  s.finished,
	}
	s.viewMu.Lock()
	s.view = v
	s.viewMu.Unlock()
}

// settleWaiters fails every pending enqueue whose track is no longer at the head.
func (s *Session) settleWaiters() {
	head := s.q.Front()
	for t, ch := range s.waiters {
		if t != head {
			ch <- ErrTrackGone
			delete(s.waiters, t)
		}
	}
}

func (s *Session) resolveWaiter(t *queue.Track, err error) bool {
	ch, ok := s.waiters[t]
	if !ok {
		return false
	}
	ch <- err
	delete(s.waiters, t)
	return true
}

func (s *Session) reclaim() {
	s.cancelStale()
	if s.janitor == nil {
		return
	}
	j := s.janitor()
	if j == nil {
		return
	}
	// The janitor reads published state, so it must see this change.
	s.publish()
	if n, err := j.Reclaim(); err != nil {
		gologging.WarnF("[Session %d] Cache cleanup failed: %v", s.chatID, err)
	} else if n > 0 {
		gologging.DebugF("[Session %d] Removed %d cache files.", s.chatID, n)
	}
}

// Enqueue appends t and returns its position. When t becomes the head, Enqueue waits until
// it starts or is dropped, so the caller learns whether it is audible.
func (s *Session) Enqueue(ctx context.Context, t *queue.Track) (int, error) {
	var (
		pos    int
		err    error
		waitCh chan error
	)
	doErr := s.do(ctx, func() {
		if s.finished {
			s.q.PopFront()
			s.finished = false
			s.reclaim()
		}
		if err = s.q.TryAppend(t); err != nil {
			return
		}
		pos = s.q.Len() - 1
		if pos == 0 {
			waitCh = make(chan error, 1)
			s.waiters[t] = waitCh
			s.loadHead()
		}
		s.prefetch()
	})
	if doErr != nil {
		return 0, doErr
	}
	if err != nil || waitCh == nil {
		return pos, err
	}
	select {
	case err := <-waitCh:
		return 0, err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// loadHead starts the head of the queue, waiting for its cache file off the loop when needed.
func (s *Session) loadHead() {
	s.stopHeadWait()
	head := s.q.Front()
	if head == nil {
		s.toIdle()
		return
	}
	if p, ok := s.media.Resident(head); ok {
		s.startHead(head, p)
		return
	}

	if s.state == Paused {
		if err := s.transport.Resume(); err != nil {
			gologging.WarnF("[Session %d] Resume before loading failed: %v", s.chatID, err)
		}
	}
	_ = s.setInput("")
	s.state = Buffering
	s.startedAt = time.Time{}
	s.headGen++
	gen := s.headGen
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.PrefetchTimeout)
	s.headWait = cancel
	go func() {
		defer cancel()
		p, err := s.media.WaitResident(ctx, head, s.opts.PollInterval)
		s.post(func() { s.headLoaded(gen, head, p, err) })
	}()
}

func (s *Session) headLoaded(gen uint64, head *queue.Track, path string, err error) {
	if gen != s.headGen || s.q.Front() != head || s.state != Buffering {
		return
	}
	s.headWait = nil
	if err != nil {
		s.drop(head, err)
		s.loadHead()
		return
	}
	s.startHead(head, path)
}

func (s *Session) startHead(head *queue.Track, path string) {
	if err := s.setInput(path); err != nil {
		s.drop(head, fmt.Errorf("switch input: %w", err))
		s.loadHead()
		return
	}
	if s.state == Paused {
		if err := s.transport.Resume(); err != nil {
			gologging.WarnF("[Session %d] Resume after switch failed: %v", s.chatID, err)
		}
	}
	s.headGen++
	s.state = Playing
	s.startedAt = s.now()
	s.finished = false
	if !s.resolveWaiter(head, nil) {
		s.notify.NowPlaying(s.chatID, head)
	}
	s.prefetch()
}

// stopHeadWait gives up waiting for the cache file of a head that is no longer loading.
func (s *Session) stopHeadWait() {
	if s.headWait != nil {
		s.headWait()
		s.headWait = nil
	}
}

// drop takes a track that cannot be played out of the queue and tells whoever needs to know.
func (s *Session) drop(t *queue.Track, err error) {
	s.q.Discard(t)
	s.cancelStale()
	gologging.WarnF("[Session %d] Dropped %s (%s): %v", s.chatID, t.CacheKey, t.Title, err)
	if !s.resolveWaiter(t, err) {
		s.notify.Failure(s.chatID, t, err)
	}
}

func (s *Session) setInput(path string) error {
	s.inputGen.Add(1)
	return s.transport.SetInput(path)
}

// prefetchJob is one background acquisition started by prefetch.
type prefetchJob struct {
	cancel context.CancelFunc
}

// prefetch acquires media for the first two queue entries in the background.
func (s *Session) prefetch() {
	for _, t := range s.q.Lookahead() {
		if s.prefetching[t.CacheKey] != nil {
			continue
		}
		if _, ok := s.media.Resident(t); ok {
			continue
		}
		ctx, cancel := context.WithCancel(s.ctx)
		job := &prefetchJob{cancel: cancel}
		s.prefetching[t.CacheKey] = job
		go func(t *queue.Track) {
			_, err := s.media.Acquire(ctx, t)
			s.post(func() { s.prefetched(job, t, err) })
		}(t)
	}
}

// cancelStale stops acquisitions for keys that left the first two queue entries.
func (s *Session) cancelStale() {
	wanted := make(map[string]bool, 2)
	for _, t := range s.q.Lookahead() {
		wanted[t.CacheKey] = true
	}
	for key, job := range s.prefetching {
		if !wanted[key] {
			job.cancel()
			delete(s.prefetching, key)
		}
	}
}

func (s *Session) prefetched(job *prefetchJob, t *queue.Track, err error) {
	job.cancel()
	if s.prefetching[t.CacheKey] == job {
		delete(s.prefetching, t.CacheKey)
	}
	i := s.q.IndexOf(t)
	if i < 0 || i > 1 {
		// The track left the queue while its file was being made.
		if err == nil {
			s.reclaim()
		}
		return
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	// The head reports its own failure through loadHead.
	if i == 1 {
		s.drop(t, err)
		s.prefetch()
	}
}

func (s *Session) toIdle() {
	if s.state == Paused {
		if err := s.transport.Resume(); err != nil {
			gologging.WarnF("[Session %d] Resume before going idle failed: %v", s.chatID, err)
		}
	}
	s.stopHeadWait()
	s.headGen++
	if err := s.setInput(""); err != nil {
		gologging.WarnF("[Session %d] Clearing input failed: %v", s.chatID, err)
	}
	s.state = Idle
	s.startedAt = time.Time{}
	s.finished = false
}

// trackEnded runs on the transport's goroutine.
func (s *Session) trackEnded() {
	gen := s.inputGen.Load()
	listening := s.anyoneListening()
	s.post(func() {
		if gen != s.inputGen.Load() || s.state == Disconnected {
			gologging.DebugF("[Session %d] Ignoring a stale end of track.", s.chatID)
			return
		}
		s.organicEnd(listening)
	})
}

func (s *Session) anyoneListening() bool {
	ctx, cancel := context.WithTimeout(s.ctx, presenceTimeout)
	defer cancel()
	ps, err := s.transport.Participants(ctx)
	if err != nil {
		gologging.WarnF("[Session %d] Participant lookup failed, assuming listeners: %v", s.chatID, err)
		return true
	}
	for _, p := range ps {
		if !p.Self {
			return true
		}
	}
	return false
}

func (s *Session) organicEnd(listening bool) {
	if !listening {
		s.q.Clear()
		s.toIdle()
		s.notify.Notice(s.chatID, "nobody_listening")
		s.reclaim()
		return
	}
	if s.q.Len() <= 1 {
		s.headGen++
		s.state = Idle
		s.startedAt = time.Time{}
		s.finished = s.q.Len() == 1
		s.notify.Notice(s.chatID, "queue_finished")
		return
	}
	s.advance()
}

// advance pops the head and starts whatever follows.
func (s *Session) advance() {
	s.q.PopFront()
	s.finished = false
	if s.q.Len() == 0 {
		s.toIdle()
	} else {
		s.loadHead()
	}
	s.reclaim()
}

// Skip skips the playing track, or with indices removes queued tracks. Index 0 among the
// indices skips the playing track after the others are removed.
func (s *Session) Skip(ctx context.Context, req SkipRequest) (SkipReport, error) {
	var (
		rep SkipReport
		err error
	)
	allow := func(t *queue.Track) error {
		if req.Moderator || t.AddedBy == req.UserID {
			return nil
		}
		return ErrUnauthorized
	}
	doErr := s.do(ctx, func() {
		skipHead := len(req.Indices) == 0
		var rest []int
		for _, i := range req.Indices {
			if i == 0 {
				skipHead = true
				continue
			}
			rest = append(rest, i)
		}

		if len(rest) > 0 {
			rep.Removals = s.q.RemoveMany(rest, allow)
		}

		if skipHead {
			head := s.q.Front()
			switch {
			case head == nil:
				err = ErrNothingPlaying
			case allow(head) != nil:
				err = ErrUnauthorized
			default:
				rep.Skipped = head
				s.advance()
				return
			}
		}
		if len(rest) > 0 {
			s.prefetch()
			s.reclaim()
		}
	})
	if doErr != nil {
		return rep, doErr
	}
	return rep, err
}

// Stop clears the queue and silences the call without leaving it.
func (s *Session) Stop(ctx context.Context) error {
	return s.do(ctx, s.stopPlayback)
}

func (s *Session) stopPlayback() {
	s.q.Clear()
	s.toIdle()
	s.reclaim()
}

func (s *Session) Pause(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, func() {
		if s.state != Playing {
			err = ErrNotPlaying
			return
		}
		if err = s.transport.Pause(); err != nil {
			return
		}
		s.state = Paused
		s.startedAt = time.Time{}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Resume continues a paused track. Elapsed time restarts from zero.
func (s *Session) Resume(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, func() {
		if s.state != Paused {
			err = ErrNotPaused
			return
		}
		if err = s.transport.Resume(); err != nil {
			return
		}
		s.state = Playing
		s.startedAt = s.now()
	}); doErr != nil {
		return doErr
	}
	return err
}

func (s *Session) Mute(ctx context.Context, muted bool) error {
	var err error
	if doErr := s.do(ctx, func() {
		if err = s.transport.Mute(muted); err == nil {
			s.muted = muted
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Replay plays the current track again from the start, including one that already finished.
func (s *Session) Replay(ctx context.Context) error {
	var err error
	if doErr := s.do(ctx, func() {
		head := s.q.Front()
		if head == nil {
			err = ErrNothingPlaying
			return
		}
		switch s.state {
		case Playing, Paused:
			if err = s.transport.Restart(); err != nil {
				return
			}
			if s.state == Paused {
				if err = s.transport.Resume(); err != nil {
					return
				}
			}
			s.state = Playing
			s.startedAt = s.now()
			s.notify.NowPlaying(s.chatID, head)
		case Idle:
			s.finished = false
			s.loadHead()
		case Buffering:
			err = ErrNotPlaying
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetMax changes the queue limit. Tracks beyond it stay queued.
func (s *Session) SetMax(ctx context.Context, n int) error {
	return s.do(ctx, func() { s.q.SetMax(n) })
}

// Leave stops playback, disconnects and waits for the session to shut down.
func (s *Session) Leave(ctx context.Context) error {
	var stopErr error
	err := s.do(ctx, func() {
		s.q.Clear()
		s.toIdle()
		stopErr = s.transport.Stop(ctx)
		s.state = Disconnected
	})
	if err != nil {
		return err
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return stopErr
}

func (s *Session) connectionLost() {
	if s.state == Disconnected {
		return
	}
	gologging.WarnF("[Session %d] Voice connection lost.", s.chatID)
	s.q.Clear()
	s.headGen++
	s.startedAt = time.Time{}
	s.state = Disconnected
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transport.Stop(ctx); err != nil {
		gologging.DebugF("[Session %d] Stopping a lost transport: %v", s.chatID, err)
	}
	s.notify.Notice(s.chatID, "connection_lost")
}

// Checkpoint captures the queue for a restart.
func (s *Session) Checkpoint() queue.Checkpoint {
	v := s.Status()
	return queue.Checkpoint{ChatID: v.ChatID, ChatTitle: v.ChatTitle, Max: v.Max, Tracks: v.Tracks}
}
