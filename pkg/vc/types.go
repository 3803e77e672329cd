package vc

import (
	"context"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/queue"
)

// State is where a session stands in its playback lifecycle.
type State int

const (
	// Idle means nothing is being streamed. The queue may still hold a finished track.
	Idle State = iota
	// Buffering means the head of the queue is waiting for its cache file.
	Buffering
	Playing
	Paused
	// Disconnected is terminal; the session is gone from the registry.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Buffering:
		return "buffering"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Participant is one member of a voice chat.
type Participant struct {
	UserID int64
	// Self marks the account that streams for the bot.
	Self bool
}

// Transport is the voice connection of one chat. Implementations must not call the
// registered callbacks while holding locks that their other methods take.
type Transport interface {
	Start(ctx context.Context, chatID int64) error
	Stop(ctx context.Context) error
	// SetInput switches the stream to a cache file. An empty path silences the call.
	SetInput(path string) error
	Pause() error
	Resume() error
	Mute(muted bool) error
	// Restart plays the current input again from its first byte.
	Restart() error
	IsConnected() bool
	Participants(ctx context.Context) ([]Participant, error)

	OnTrackEnded(fn func())
	OnConnectionChanged(fn func(connected bool))
}

// TransportFactory hands out a transport for a chat, usually backed by one of the assistant accounts.
type TransportFactory interface {
	Transport(ctx context.Context, chatID int64) (Transport, error)
}

// MediaSource turns tracks into cache files.
type MediaSource interface {
	Acquire(ctx context.Context, t *queue.Track) (string, error)
	Resident(t *queue.Track) (string, bool)
	WaitResident(ctx context.Context, t *queue.Track, interval time.Duration) (string, error)
}

// Reclaimer deletes cache files no session needs.
type Reclaimer interface {
	Reclaim() (int, error)
}

// Notifier tells a chat what the session did on its own. Calls are made from the session
// loop and must return quickly.
type Notifier interface {
	NowPlaying(chatID int64, t *queue.Track)
	// Notice sends a short translated message; key names a lang string.
	Notice(chatID int64, key string, args ...any)
	// Failure reports a track that was dropped because it could not be played.
	Failure(chatID int64, t *queue.Track, err error)
}

// Options tune a session.
type Options struct {
	MaxQueueLength int
	// PrefetchTimeout bounds how long the head of the queue may wait for its cache file.
	PrefetchTimeout time.Duration
	// PollInterval is how often a waiting head re-checks the disk.
	PollInterval time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxQueueLength < 1 {
		o.MaxQueueLength = queue.DefaultMax
	}
	if o.PrefetchTimeout <= 0 {
		o.PrefetchTimeout = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Status is a read-only copy of a session, refreshed after every change.
type Status struct {
	ChatID    int64
	ChatTitle string
	State     State
	Tracks    []*queue.Track
	Max       int
	// StartedAt is when the current track began or was last resumed. Zero when unknown.
	StartedAt time.Time
	JoinedAt  time.Time
	Muted     bool
	// Finished is set when the only queued track ended and is kept for a replay.
	Finished bool
}

// Current returns the head of the queue or nil.
func (s Status) Current() *queue.Track {
	if len(s.Tracks) == 0 {
		return nil
	}
	return s.Tracks[0]
}

// Elapsed reports how long the current track has been audible since StartedAt.
func (s Status) Elapsed(now time.Time) (time.Duration, bool) {
	if s.State != Playing || s.StartedAt.IsZero() {
		return 0, false
	}
	return now.Sub(s.StartedAt), true
}

// Lookahead returns the cache keys of the playing track and the next one.
func (s Status) Lookahead() []string {
	n := min(2, len(s.Tracks))
	keys := make([]string, 0, n)
	for _, t := range s.Tracks[:n] {
		keys = append(keys, t.CacheKey)
	}
	return keys
}

// SkipRequest asks to skip the current track (no indices) or drop queued ones.
type SkipRequest struct {
	UserID    int64
	Moderator bool
	Indices   []int
}

// SkipReport lists what a skip did.
type SkipReport struct {
	// Skipped is the track that was playing when index 0 was skipped.
	Skipped  *queue.Track
	Removals []queue.Removal
}
