package ubot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Laky-64/gologging"
	tg "github.com/amarnathcjd/gogram/telegram"
)

var ErrNoVoiceChat = errors.New("the chat has no active voice chat")

// Member is one participant of a group call.
type Member struct {
	UserID int64
	Self   bool
}

// Context is one assistant account and the calls it streams to.
type Context struct {
	App       *tg.Client
	bridgeDir string
	interval  time.Duration

	mu              sync.Mutex
	calls           map[int64]*Call
	inputGroupCalls map[int64]tg.InputGroupCall

	// Overridable for tests.
	openSink  func(chatID int64) (FrameSink, error)
	groupCall func(chatID int64) (tg.InputGroupCall, error)
	members   func(call tg.InputGroupCall) ([]Member, error)
}

// NewInstance wraps a started assistant client. Pipes for the media bridge live in bridgeDir.
func NewInstance(app *tg.Client, bridgeDir string) (*Context, error) {
	if app == nil {
		return nil, errors.New("nil client")
	}
	if err := os.MkdirAll(bridgeDir, 0o755); err != nil {
		return nil, fmt.Errorf("create bridge dir: %w", err)
	}
	c := &Context{
		App:             app,
		bridgeDir:       bridgeDir,
		interval:        FrameDuration,
		calls:           make(map[int64]*Call),
		inputGroupCalls: make(map[int64]tg.InputGroupCall),
	}
	c.openSink = c.openFifo
	c.groupCall = c.fetchGroupCall
	c.members = c.fetchMembers
	return c, nil
}

// PipePath is where the bridge finds the audio of chatID.
func (c *Context) PipePath(chatID int64) string {
	return filepath.Join(c.bridgeDir, strconv.FormatInt(chatID, 10)+".pcm")
}

func (c *Context) openFifo(chatID int64) (FrameSink, error) {
	return OpenFifo(c.PipePath(chatID))
}

// Call returns the call of chatID, creating an idle one when needed.
func (c *Context) Call(chatID int64) *Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	if call, ok := c.calls[chatID]; ok {
		return call
	}
	call := &Call{owner: c, chatID: chatID}
	c.calls[chatID] = call
	return call
}

func (c *Context) forget(chatID int64, call *Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls[chatID] == call {
		delete(c.calls, chatID)
	}
	delete(c.inputGroupCalls, chatID)
}

// ActiveCalls counts the calls currently streaming.
func (c *Context) ActiveCalls() int {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	c.mu.Unlock()

	n := 0
	for _, call := range calls {
		if call.IsConnected() {
			n++
		}
	}
	return n
}

// InputGroupCall returns the voice chat of chatID, asking Telegram when it is not cached or
// refresh is set.
func (c *Context) InputGroupCall(chatID int64, refresh bool) (tg.InputGroupCall, error) {
	c.mu.Lock()
	cached, ok := c.inputGroupCalls[chatID]
	c.mu.Unlock()
	if ok && !refresh {
		return cached, nil
	}

	call, err := c.groupCall(chatID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.inputGroupCalls[chatID] = call
	c.mu.Unlock()
	return call, nil
}

func (c *Context) fetchGroupCall(chatID int64) (tg.InputGroupCall, error) {
	peer, err := c.App.ResolvePeer(chatID)
	if err != nil {
		return nil, fmt.Errorf("resolve chat %d: %w", chatID, err)
	}

	var call tg.InputGroupCall
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		full, err := c.App.ChannelsGetFullChannel(&tg.InputChannelObj{ChannelID: p.ChannelID, AccessHash: p.AccessHash})
		if err != nil {
			return nil, fmt.Errorf("get full channel: %w", err)
		}
		if ch, ok := full.FullChat.(*tg.ChannelFull); ok {
			call = ch.Call
		}
	case *tg.InputPeerChat:
		full, err := c.App.MessagesGetFullChat(p.ChatID)
		if err != nil {
			return nil, fmt.Errorf("get full chat: %w", err)
		}
		if ch, ok := full.FullChat.(*tg.ChatFullObj); ok {
			call = ch.Call
		}
	default:
		return nil, fmt.Errorf("chat %d is not a group: %T", chatID, peer)
	}
	if call == nil {
		return nil, ErrNoVoiceChat
	}
	return call, nil
}

func (c *Context) fetchMembers(call tg.InputGroupCall) ([]Member, error) {
	res, err := c.App.PhoneGetGroupParticipants(call, []tg.InputPeer{}, []int32{}, "", 500)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(res.Participants))
	for _, p := range res.Participants {
		m := Member{Self: p.Self}
		if u, ok := p.Peer.(*tg.PeerUser); ok {
			m.UserID = u.UserID
		}
		out = append(out, m)
	}
	return out, nil
}

// Members lists the participants of chatID's voice chat.
func (c *Context) Members(ctx context.Context, chatID int64) ([]Member, error) {
	call, err := c.InputGroupCall(chatID, false)
	if err != nil {
		return nil, err
	}

	type result struct {
		members []Member
		err     error
	}
	done := make(chan result, 1)
	go func() {
		ms, err := c.members(call)
		done <- result{ms, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.members, r.err
	}
}

func (c *Context) leaveGroupCall(chatID int64) {
	c.mu.Lock()
	call, ok := c.inputGroupCalls[chatID]
	c.mu.Unlock()
	if !ok || c.App == nil {
		return
	}
	if _, err := c.App.PhoneLeaveGroupCall(call, 0); err != nil {
		gologging.DebugF("[ubot] Leaving the group call of %d: %v", chatID, err)
	}
}

// Close stops every call of this assistant.
func (c *Context) Close() {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.calls))
	for _, call := range c.calls {
		calls = append(calls, call)
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, call := range calls {
		if err := call.Stop(ctx); err != nil {
			gologging.WarnF("[ubot] Stopping the call of %d: %v", call.chatID, err)
		}
	}
}
