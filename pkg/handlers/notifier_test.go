package handlers

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/amarnathcjd/gogram/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type sent struct {
	chatID int64
	text   string
}

type recorder struct {
	mu      sync.Mutex
	sent    []sent
	deleted []int32
	nextID  int32
}

func (r *recorder) send(chatID int64, text string, _ *telegram.SendOptions) (*telegram.NewMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.sent = append(r.sent, sent{chatID, text})
	return &telegram.NewMessage{ID: r.nextID}, nil
}

func (r *recorder) delete(msg *telegram.NewMessage) {
	r.mu.Lock()
	r.deleted = append(r.deleted, msg.ID)
	r.mu.Unlock()
}

func (r *recorder) sentTo(chatID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.sent {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (r *recorder) deletedIDs() []int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int32(nil), r.deleted...)
}

func newTestNotifier(loggerID int64, ttl time.Duration) (*Notifier, *recorder) {
	rec := &recorder{nextID: 100}
	n := &Notifier{
		loggerID:   loggerID,
		ttl:        ttl,
		global:     rate.NewLimiter(rate.Inf, 1),
		perChat:    cache.NewCache[*rate.Limiter](time.Minute),
		nowPlaying: make(map[int64]*telegram.NewMessage),
		send:       rec.send,
		delete:     rec.delete,
	}
	return n, rec
}

func TestNotifierNowPlayingReplacesAnnouncement(t *testing.T) {
	n, rec := newTestNotifier(0, 0)
	n.Announced(-100, &telegram.NewMessage{ID: 1})

	tr := queue.NewWeb("YT", "a", "Song", 90, "https://www.youtube.com/watch?v=a", 5)
	n.NowPlaying(-100, tr)

	require.Eventually(t, func() bool { return len(rec.deletedIDs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int32{1}, rec.deletedIDs())
	texts := rec.sentTo(-100)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Song")
	assert.Contains(t, texts[0], "1:30")
}

func TestNotifierAnnouncedSameMessageIsKept(t *testing.T) {
	n, rec := newTestNotifier(0, 0)
	msg := &telegram.NewMessage{ID: 7}
	n.Announced(-100, msg)
	n.Announced(-100, msg)
	assert.Empty(t, rec.deletedIDs())

	n.Forget(-100)
	assert.Equal(t, []int32{7}, rec.deletedIDs())
	n.Forget(-100)
	assert.Len(t, rec.deletedIDs(), 1)
}

func TestNotifierNoticeForgetsOnDisconnect(t *testing.T) {
	n, rec := newTestNotifier(0, 0)
	n.Announced(-100, &telegram.NewMessage{ID: 3})

	n.Notice(-100, "connection_lost")

	require.Eventually(t, func() bool { return len(rec.sentTo(-100)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, lang.GetString(lang.DefaultLang, "connection_lost"), rec.sentTo(-100)[0])
	assert.Equal(t, []int32{3}, rec.deletedIDs())
}

func TestNotifierQueueFinishedKeepsAnnouncement(t *testing.T) {
	n, rec := newTestNotifier(0, 0)
	n.Announced(-100, &telegram.NewMessage{ID: 3})

	n.Notice(-100, "queue_finished")

	require.Eventually(t, func() bool { return len(rec.sentTo(-100)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.deletedIDs())
}

func TestNotifierTransientMessagesExpire(t *testing.T) {
	n, rec := newTestNotifier(0, 20*time.Millisecond)

	n.Notice(-100, "nobody_listening")

	require.Eventually(t, func() bool { return len(rec.deletedIDs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int32{101}, rec.deletedIDs())
}

func TestNotifierFailureReachesChatAndLog(t *testing.T) {
	const logChat = -999
	n, rec := newTestNotifier(logChat, 0)
	tr := queue.NewWeb("YT", "a", "Broken <Song>", 90, "https://www.youtube.com/watch?v=a", 5)

	n.Failure(-100, tr, errors.Join(dl.ErrDownloadFailed, errors.New("HTTP 403 <forbidden>")))

	require.Eventually(t, func() bool {
		return len(rec.sentTo(-100)) == 1 && len(rec.sentTo(logChat)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, rec.sentTo(-100)[0], lang.GetString(lang.DefaultLang, "err_download"))
	assert.NotContains(t, rec.sentTo(-100)[0], "403")

	logged := rec.sentTo(logChat)[0]
	assert.Contains(t, logged, "YT_a")
	assert.Contains(t, logged, "&lt;forbidden&gt;")
}

func TestNotifierLogWithoutLoggerIsSilent(t *testing.T) {
	n, rec := newTestNotifier(0, 0)
	n.Log("hello %d", 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.sentTo(0))
}
