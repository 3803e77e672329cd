package ubot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Laky-64/gologging"
)

var errNotStarted = errors.New("call is not started")

// Call streams audio into one chat's voice chat.
type Call struct {
	owner  *Context
	chatID int64

	mu        sync.Mutex
	player    *Player
	sink      FrameSink
	connected bool
	onEnd     func()
	onConn    func(bool)
}

func (c *Call) ChatID() int64 { return c.chatID }

func (c *Call) OnTrackEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEnd = fn
}

func (c *Call) OnConnectionChanged(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConn = fn
}

// Start checks that the chat has a voice chat and opens the stream to the bridge.
func (c *Call) Start(_ context.Context, chatID int64) error {
	if chatID != c.chatID {
		return fmt.Errorf("call belongs to %d, not %d", c.chatID, chatID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	if _, err := c.owner.InputGroupCall(chatID, true); err != nil {
		return err
	}
	sink, err := c.owner.openSink(chatID)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	p := NewPlayer(sink, c.owner.interval)
	p.OnEnd(func() {
		c.mu.Lock()
		fn := c.onEnd
		c.mu.Unlock()
		if fn != nil {
			go fn()
		}
	})
	p.OnError(func(err error) {
		gologging.WarnF("[ubot] Stream of %d broke: %v", c.chatID, err)
		c.lost()
	})
	p.Start()

	c.player = p
	c.sink = sink
	c.connected = true
	gologging.InfoF("[ubot] Streaming to %d.", chatID)
	return nil
}

// lost runs on the player goroutine after the sink failed.
func (c *Call) lost() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	fn := c.onConn
	c.mu.Unlock()
	if fn != nil {
		go fn(false)
	}
}

// Stop closes the stream and leaves the voice chat. It is safe to call more than once.
func (c *Call) Stop(_ context.Context) error {
	c.mu.Lock()
	p, sink := c.player, c.sink
	c.player, c.sink = nil, nil
	c.connected = false
	c.mu.Unlock()

	var err error
	if p != nil {
		p.Close()
	}
	if sink != nil {
		err = sink.Close()
	}
	c.owner.leaveGroupCall(c.chatID)
	c.owner.forget(c.chatID, c)
	return err
}

func (c *Call) withPlayer(fn func(p *Player) error) error {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	if p == nil {
		return errNotStarted
	}
	return fn(p)
}

func (c *Call) SetInput(path string) error {
	return c.withPlayer(func(p *Player) error { return p.SetInput(path) })
}

func (c *Call) Pause() error {
	return c.withPlayer(func(p *Player) error { p.SetPaused(true); return nil })
}

func (c *Call) Resume() error {
	return c.withPlayer(func(p *Player) error { p.SetPaused(false); return nil })
}

func (c *Call) Mute(muted bool) error {
	return c.withPlayer(func(p *Player) error { p.SetMuted(muted); return nil })
}

func (c *Call) Restart() error {
	return c.withPlayer(func(p *Player) error { return p.Restart() })
}

func (c *Call) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Members lists who is in the voice chat.
func (c *Call) Members(ctx context.Context) ([]Member, error) {
	return c.owner.Members(ctx, c.chatID)
}
