package dl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Laky-64/gologging"
	"golang.org/x/sync/singleflight"

	"github.com/zuchzub/vcplayer/pkg/core/queue"
)

// ErrNotReady is returned by WaitResident when the deadline passes first.
var ErrNotReady = errors.New("track was not ready in time")

// errAbandoned ends a production once every caller waiting for it has given up.
var errAbandoned = errors.New("acquisition abandoned")

// Prober reports the length of a downloaded file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (int, error)
}

// AcquirerConfig tunes an Acquirer.
type AcquirerConfig struct {
	Dir       string
	Normalize bool
	Timeout   time.Duration
}

// Acquirer turns tracks into PCM cache files. Work for one cache key runs at most once at a time;
// later callers wait for the running one.
type Acquirer struct {
	cfg        AcquirerConfig
	fetch      Fetcher
	resolver   Resolver
	transcoder Transcoder
	prober     Prober
	group      singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight counts the callers waiting on one cache key. The production stops when the
// count drops to zero before it is done.
type flight struct {
	waiters int
	ctx     context.Context
	stop    context.CancelCauseFunc
}

// NewAcquirer wires the collaborators. prober may be nil.
func NewAcquirer(cfg AcquirerConfig, fetch Fetcher, resolver Resolver, transcoder Transcoder, prober Prober) *Acquirer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Acquirer{
		cfg:        cfg,
		fetch:      fetch,
		resolver:   resolver,
		transcoder: transcoder,
		prober:     prober,
		flights:    make(map[string]*flight),
	}
}

// Dir is the cache directory.
func (a *Acquirer) Dir() string { return a.cfg.Dir }

// Path is where the cache file for key lives.
func (a *Acquirer) Path(key string) string {
	return filepath.Join(a.cfg.Dir, CacheFileName(key))
}

// Resident returns the cache file of t if it is already on disk.
func (a *Acquirer) Resident(t *queue.Track) (string, bool) {
	p := a.Path(t.CacheKey)
	if fileExists(p) {
		return p, true
	}
	return "", false
}

// Acquire returns the cache file for t, producing it when missing. Callers asking for the same
// key share one production, which keeps running while at least one of them still waits.
func (a *Acquirer) Acquire(ctx context.Context, t *queue.Track) (string, error) {
	if err := t.Valid(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}
	for {
		if p, ok := a.Resident(t); ok {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p, err := a.await(ctx, t)
		// A production left behind by earlier callers: start a fresh one.
		if errors.Is(err, errAbandoned) && ctx.Err() == nil {
			continue
		}
		return p, err
	}
}

func (a *Acquirer) await(ctx context.Context, t *queue.Track) (string, error) {
	f := a.join(ctx, t.CacheKey)
	defer a.leave(t.CacheKey, f)

	ch := a.group.DoChan(t.CacheKey, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("acquire %s panicked: %v", t.CacheKey, r)
			}
		}()
		if p, ok := a.Resident(t); ok {
			return p, nil
		}
		wctx, cancel := context.WithTimeout(f.ctx, a.cfg.Timeout)
		defer cancel()
		p, err := a.produce(wctx, t)
		if err != nil && errors.Is(context.Cause(f.ctx), errAbandoned) {
			return "", errAbandoned
		}
		return p, err
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	}
}

func (a *Acquirer) join(ctx context.Context, key string) *flight {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.flights[key]
	if !ok {
		fctx, stop := context.WithCancelCause(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, stop: stop}
		a.flights[key] = f
	}
	f.waiters++
	return f
}

func (a *Acquirer) leave(key string, f *flight) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.stop(errAbandoned)
	if a.flights[key] == f {
		delete(a.flights, key)
	}
}

// WaitResident waits until t's cache file exists, re-checking the disk every interval while an
// acquisition runs. It gives up with ErrNotReady when ctx ends.
func (a *Acquirer) WaitResident(ctx context.Context, t *queue.Track, interval time.Duration) (string, error) {
	if p, ok := a.Resident(t); ok {
		return p, nil
	}
	type result struct {
		path string
		err  error
	}
	// The inner acquisition is cancelled and awaited on return, so it cannot start
	// producing a file after the caller moved on.
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan result, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		p, err := a.Acquire(ctx, t)
		done <- result{p, err}
	}()
	defer func() {
		cancel()
		<-exited
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s", ErrNotReady, t.Title)
		case r := <-done:
			if r.err != nil && ctx.Err() != nil {
				return "", fmt.Errorf("%w: %s", ErrNotReady, t.Title)
			}
			return r.path, r.err
		case <-ticker.C:
			if p, ok := a.Resident(t); ok {
				return p, nil
			}
		}
	}
}

func exceeds(limit, duration int) bool {
	return limit > 0 && duration > limit
}

// produce downloads, checks and transcodes one track. Intermediate files are always removed.
func (a *Acquirer) produce(ctx context.Context, t *queue.Track) (string, error) {
	started := time.Now()
	src := filepath.Join(a.cfg.Dir, ".src-"+t.CacheKey)
	defer removeMatching(src + "*")

	var (
		downloaded string
		known      = t.Duration
		err        error
	)
	switch t.Origin {
	case queue.ChatUpload:
		if exceeds(t.Limit, t.Duration) {
			return "", fmt.Errorf("%w: %s", ErrDurationExceeded, t.Title)
		}
		downloaded, err = a.fetch.Fetch(ctx, t.Locator, src)

	case queue.WebSearch:
		item, rerr := a.resolver.Resolve(ctx, t.Locator)
		if rerr != nil {
			return "", asKind(rerr, ErrResolutionFailed)
		}
		if item.Duration > 0 {
			known = item.Duration
		}
		if exceeds(t.Limit, known) {
			return "", fmt.Errorf("%w: %s", ErrDurationExceeded, t.Title)
		}
		downloaded, err = a.resolver.Download(ctx, item, src)

	default:
		return "", fmt.Errorf("%w: unknown origin %v", ErrResolutionFailed, t.Origin)
	}
	if downloaded != "" {
		defer func() { _ = os.Remove(downloaded) }()
	}
	if err != nil {
		return "", asKind(err, ErrDownloadFailed)
	}

	if known == 0 && t.Limit > 0 && a.prober != nil {
		if d, perr := a.prober.Duration(ctx, downloaded); perr == nil && exceeds(t.Limit, d) {
			return "", fmt.Errorf("%w: %s", ErrDurationExceeded, t.Title)
		}
	}

	final := a.Path(t.CacheKey)
	part := final + ".part"
	if err := a.transcoder.Transcode(ctx, downloaded, part, a.cfg.Normalize); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(part)
		return "", err
	}
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}

	gologging.InfoF("[Acquirer] %s ready in %s (%s)", t.CacheKey, time.Since(started).Round(time.Millisecond), t.Title)
	return final, nil
}

// asKind makes sure err matches kind with errors.Is.
func asKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func removeMatching(pattern string) {
	matches, _ := filepath.Glob(pattern)
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
