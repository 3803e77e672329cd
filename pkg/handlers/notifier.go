package handlers

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
	"golang.org/x/time/rate"
)

// LangSource knows the language of a chat.
type LangSource interface {
	GetLang(ctx context.Context, chatID int64) string
}

const (
	// Telegram allows about 30 messages per second overall and 20 per minute in one group.
	globalRate  = 25
	chatEvery   = 3 * time.Second
	chatBurst   = 4
	sendTimeout = 30 * time.Second
)

// Notifier posts what sessions do on their own. Every call returns at once; messages are
// throttled per chat and globally, and dropped when the wait gets too long.
type Notifier struct {
	langs    LangSource
	loggerID int64
	ttl      time.Duration

	global  *rate.Limiter
	perChat *cache.Cache[*rate.Limiter]

	mu         sync.Mutex
	nowPlaying map[int64]*telegram.NewMessage

	// Overridable for tests.
	send   func(chatID int64, text string, opts *telegram.SendOptions) (*telegram.NewMessage, error)
	delete func(msg *telegram.NewMessage)
}

// NewNotifier sends through client. Transient messages are removed after ttl.
func NewNotifier(client *telegram.Client, langs LangSource, loggerID int64, ttl time.Duration) *Notifier {
	n := &Notifier{
		langs:      langs,
		loggerID:   loggerID,
		ttl:        ttl,
		global:     rate.NewLimiter(rate.Limit(globalRate), globalRate),
		perChat:    cache.NewCache[*rate.Limiter](30 * time.Minute),
		nowPlaying: make(map[int64]*telegram.NewMessage),
	}
	n.send = func(chatID int64, text string, opts *telegram.SendOptions) (*telegram.NewMessage, error) {
		return client.SendMessage(chatID, text, opts)
	}
	n.delete = func(msg *telegram.NewMessage) {
		if _, err := msg.Delete(); err != nil {
			gologging.DebugF("[Notifier] Deleting message %d failed: %v", msg.ID, err)
		}
	}
	return n
}

func (n *Notifier) langOf(chatID int64) string {
	if n.langs == nil {
		return lang.DefaultLang
	}
	ctx, cancel := db.Ctx()
	defer cancel()
	return n.langs.GetLang(ctx, chatID)
}

func (n *Notifier) limiter(chatID int64) *rate.Limiter {
	key := fmt.Sprint(chatID)
	n.perChat.SetIfAbsent(key, rate.NewLimiter(rate.Every(chatEvery), chatBurst))
	l, ok := n.perChat.Get(key)
	if !ok {
		// Expired between the two calls.
		l = rate.NewLimiter(rate.Every(chatEvery), chatBurst)
		n.perChat.Set(key, l)
	}
	return l
}

// deliver waits for both limiters and sends. It runs on its own goroutine.
func (n *Notifier) deliver(chatID int64, text string, opts *telegram.SendOptions) *telegram.NewMessage {
	defer func() {
		if r := recover(); r != nil {
			gologging.ErrorF("[Notifier] Panic while sending to %d: %v", chatID, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := n.limiter(chatID).Wait(ctx); err != nil {
		gologging.WarnF("[Notifier] Dropping a message to %d: %v", chatID, err)
		return nil
	}
	if err := n.global.Wait(ctx); err != nil {
		gologging.WarnF("[Notifier] Dropping a message to %d: %v", chatID, err)
		return nil
	}

	msg, err := n.send(chatID, text, opts)
	if err != nil {
		gologging.WarnF("[Notifier] Sending to %d failed: %v", chatID, err)
		return nil
	}
	return msg
}

// later deletes msg after the transient lifetime.
func (n *Notifier) later(msgs ...*telegram.NewMessage) {
	if n.ttl <= 0 {
		return
	}
	time.AfterFunc(n.ttl, func() {
		for _, msg := range msgs {
			if msg != nil {
				n.delete(msg)
			}
		}
	})
}

// NowPlaying announces t with playback controls and removes the previous announcement.
func (n *Notifier) NowPlaying(chatID int64, t *queue.Track) {
	go func() {
		text := nowPlayingText(n.langOf(chatID), t)
		msg := n.deliver(chatID, text, &telegram.SendOptions{ReplyMarkup: core.ControlButtons("play"), LinkPreview: false})
		if msg != nil {
			n.Announced(chatID, msg)
		}
	}()
}

// Announced records msg as the now playing message of chatID, replacing an older one.
func (n *Notifier) Announced(chatID int64, msg *telegram.NewMessage) {
	n.mu.Lock()
	old := n.nowPlaying[chatID]
	n.nowPlaying[chatID] = msg
	n.mu.Unlock()
	if old != nil && old != msg {
		n.delete(old)
	}
}

// Forget drops the now playing message of chatID.
func (n *Notifier) Forget(chatID int64) {
	n.mu.Lock()
	old := n.nowPlaying[chatID]
	delete(n.nowPlaying, chatID)
	n.mu.Unlock()
	if old != nil {
		n.delete(old)
	}
}

// Notice sends a short transient message.
func (n *Notifier) Notice(chatID int64, key string, args ...any) {
	go func() {
		text := lang.Format(n.langOf(chatID), key, args...)
		n.later(n.deliver(chatID, text, &telegram.SendOptions{LinkPreview: false}))
	}()
	switch key {
	case "nobody_listening", "connection_lost":
		n.Forget(chatID)
	}
}

// Failure tells the chat that t was dropped and sends the full error to the log chat.
func (n *Notifier) Failure(chatID int64, t *queue.Track, err error) {
	go func() {
		langCode := n.langOf(chatID)
		text := lang.Format(langCode, "track_failed", trackLink(t), lang.GetString(langCode, errorKey(err)))
		n.later(n.deliver(chatID, text, &telegram.SendOptions{LinkPreview: false}))
	}()
	title := ""
	if t != nil {
		title = t.CacheKey + " " + t.Title
	}
	n.Log("⚠️ Chat <code>%d</code>: %s\n<code>%s</code>", chatID, html.EscapeString(title), html.EscapeString(fmt.Sprint(err)))
}

// Log writes to the operator log chat.
func (n *Notifier) Log(format string, args ...any) {
	if n.loggerID == 0 {
		return
	}
	text := fmt.Sprintf(format, args...)
	go n.deliver(n.loggerID, text, &telegram.SendOptions{LinkPreview: false})
}

// Transient deletes msgs after the configured delay.
func (n *Notifier) Transient(msgs ...*telegram.NewMessage) {
	n.later(msgs...)
}
