package vc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zuchzub/vcplayer/pkg/core/queue"

	"github.com/Laky-64/gologging"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Transports TransportFactory
	Media      MediaSource
	Notifier   Notifier
	Options    Options
}

// Registry maps chats to their sessions. At most one session exists per chat.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[int64]*Session
	joining  map[int64]struct{}
	janitor  Reclaimer
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[int64]*Session),
		joining:  make(map[int64]struct{}),
	}
}

// SetJanitor installs the cache janitor. It is set after construction because the janitor
// itself reads the registry.
func (r *Registry) SetJanitor(j Reclaimer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.janitor = j
}

func (r *Registry) getJanitor() Reclaimer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.janitor
}

// Join connects to the voice chat of chatID and returns its new session.
func (r *Registry) Join(ctx context.Context, chatID int64, title string, maxLen int) (*Session, error) {
	r.mu.Lock()
	_, active := r.sessions[chatID]
	_, pending := r.joining[chatID]
	if active || pending {
		r.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	r.joining[chatID] = struct{}{}
	r.mu.Unlock()

	s, err := r.connect(ctx, chatID, title, maxLen)

	r.mu.Lock()
	delete(r.joining, chatID)
	if err == nil {
		r.sessions[chatID] = s
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.start()
	gologging.InfoF("[Registry] Joined the voice chat of %d (%s).", chatID, title)
	return s, nil
}

func (r *Registry) connect(ctx context.Context, chatID int64, title string, maxLen int) (*Session, error) {
	if r.deps.Transports == nil {
		return nil, ErrNoAssistant
	}
	t, err := r.deps.Transports.Transport(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx, chatID); err != nil {
		return nil, fmt.Errorf("join voice chat: %w", err)
	}
	s := newSession(chatID, title, t, &r.deps, maxLen)
	s.janitor = r.getJanitor
	s.onExit = r.remove
	return s, nil
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.chatID] == s {
		delete(r.sessions, s.chatID)
		gologging.InfoF("[Registry] Session of %d closed.", s.chatID)
	}
}

func (r *Registry) Get(chatID int64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[chatID]
	return s, ok
}

// All returns every session ordered by chat id.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Session) int {
		switch {
		case a.chatID < b.chatID:
			return -1
		case a.chatID > b.chatID:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Leave disconnects chatID and destroys its session.
func (r *Registry) Leave(ctx context.Context, chatID int64) error {
	s, ok := r.Get(chatID)
	if !ok {
		return ErrNotJoined
	}
	return s.Leave(ctx)
}

// LeaveAll disconnects every session. Failures do not stop the others; it returns how many
// sessions left cleanly and every error joined.
func (r *Registry) LeaveAll(ctx context.Context) (int, error) {
	var (
		mu   sync.Mutex
		errs []error
		left int
	)
	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, s := range r.All() {
		g.Go(func() error {
			err := s.Leave(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && !errors.Is(err, ErrNotJoined) {
				errs = append(errs, fmt.Errorf("chat %d: %w", s.chatID, err))
				return nil
			}
			left++
			return nil
		})
	}
	_ = g.Wait()
	return left, errors.Join(errs...)
}

// CacheKeysInUse lists the cache keys of every session's current and next track.
func (r *Registry) CacheKeysInUse() []string {
	var keys []string
	for _, s := range r.All() {
		keys = append(keys, s.Status().Lookahead()...)
	}
	return keys
}

// Reclaim runs the janitor once, if one is installed.
func (r *Registry) Reclaim() (int, error) {
	j := r.getJanitor()
	if j == nil {
		return 0, nil
	}
	return j.Reclaim()
}

// Checkpoints captures the queue of every session that has one.
func (r *Registry) Checkpoints() []queue.Checkpoint {
	var out []queue.Checkpoint
	for _, s := range r.All() {
		if cp := s.Checkpoint(); len(cp.Tracks) > 0 {
			out = append(out, cp)
		}
	}
	return out
}

// Restore rejoins each saved chat and queues its tracks again in order. Joining happens
// before Restore returns; tracks are queued in the background.
func (r *Registry) Restore(ctx context.Context, cps []queue.Checkpoint) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, cp := range cps {
		g.Go(func() error {
			s, err := r.Join(gctx, cp.ChatID, cp.ChatTitle, cp.Max)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("chat %d: %w", cp.ChatID, err))
				mu.Unlock()
				return nil
			}
			go r.requeue(s, cp.Tracks)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Registry) requeue(s *Session, tracks []*queue.Track) {
	for _, t := range tracks {
		if _, err := s.Enqueue(context.Background(), t); err != nil {
			if errors.Is(err, ErrNotJoined) {
				return
			}
			gologging.WarnF("[Registry] Could not restore %q in %d: %v", t.Title, s.chatID, err)
			if r.deps.Notifier != nil {
				r.deps.Notifier.Failure(s.chatID, t, err)
			}
		}
	}
}
