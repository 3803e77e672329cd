package ubot

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/dl"

	"github.com/Laky-64/gologging"
)

const (
	// FrameDuration is the pacing unit of the stream.
	FrameDuration = 20 * time.Millisecond
	// FrameSize is the byte size of one frame of cache-file audio.
	FrameSize = dl.BytesPerSecond / int(time.Second/FrameDuration)
)

// Player paces a raw PCM file into a sink in real time. While there is no input or the
// player is paused it sends silence so the bridge keeps a steady clock.
type Player struct {
	sink     FrameSink
	interval time.Duration

	mu      sync.Mutex
	file    *os.File
	path    string
	paused  bool
	muted   bool
	sent    int64
	onEnd   func()
	onError func(error)

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPlayer returns a player writing one frame per interval. Zero means FrameDuration.
func NewPlayer(sink FrameSink, interval time.Duration) *Player {
	if interval <= 0 {
		interval = FrameDuration
	}
	return &Player{
		sink:     sink,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnEnd is called from the player goroutine when the input reaches its end.
func (p *Player) OnEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = fn
	p.mu.Unlock()
}

// OnError is called once when the sink rejects a frame. The player stops afterwards.
func (p *Player) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Start launches the pacing goroutine.
func (p *Player) Start() {
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

func (p *Player) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	frame := make([]byte, FrameSize)
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}

		ended := p.next(frame)
		if err := p.sink.WriteFrame(frame); err != nil {
			p.mu.Lock()
			fn := p.onError
			p.mu.Unlock()
			if fn != nil {
				fn(err)
			}
			return
		}
		if ended != nil {
			ended()
		}
	}
}

// next fills frame with the next audio and returns the end callback when the input ran out.
func (p *Player) next(frame []byte) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil || p.paused {
		clear(frame)
		return nil
	}
	n, err := io.ReadFull(p.file, frame)
	p.sent += int64(n)
	if p.muted {
		clear(frame)
	} else {
		clear(frame[n:])
	}
	if err == nil {
		return nil
	}
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		gologging.WarnF("[Player] Reading %s failed, ending it early: %v", p.path, err)
	}
	_ = p.file.Close()
	p.file = nil
	return p.onEnd
}

// SetInput switches to the file at path from its start. An empty path removes the input.
func (p *Player) SetInput(path string) error {
	var f *os.File
	if path != "" {
		var err error
		if f, err = os.Open(path); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		_ = p.file.Close()
	}
	p.file = f
	p.path = path
	p.sent = 0
	return nil
}

// Restart rewinds the current input, reopening it when it already ended.
func (p *Player) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return errors.New("no input to restart")
	}
	if p.file == nil {
		f, err := os.Open(p.path)
		if err != nil {
			return err
		}
		p.file = f
	} else if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	p.sent = 0
	return nil
}

func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Position is how much of the current input has been sent.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.sent) * time.Second / time.Duration(dl.BytesPerSecond)
}

// Close stops the goroutine, waits for it and closes the input. The sink is left to its owner.
func (p *Player) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started.Load() {
		<-p.done
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		_ = p.file.Close()
		p.file = nil
	}
}
