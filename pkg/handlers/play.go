package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/zuchzub/vcplayer/pkg/config"
	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/core/dl"
	"github.com/zuchzub/vcplayer/pkg/core/queue"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

const (
	resolveTimeout = 30 * time.Second
	searchResults  = 5
)

// searchResult is a /search answer waiting for a pick.
type searchResult struct {
	UserID  int64
	Items   []*dl.Item
	Command *telegram.NewMessage
	Results *telegram.NewMessage
}

// durationLimit is the longest track userID may add, in seconds.
func (h *Handlers) durationLimit(ctx context.Context, chatID, userID int64) int {
	if config.Conf == nil {
		return 0
	}
	if h.isModerator(ctx, chatID, userID) {
		return config.Conf.MaxDurationAdmin
	}
	return config.Conf.MaxDurationMember
}

// enqueueTimeout covers a first track that has to be downloaded and transcoded.
func enqueueTimeout() time.Duration {
	if config.Conf == nil {
		return 3 * time.Minute
	}
	return config.Conf.PrefetchTimeout + 30*time.Second
}

// session returns the session of chatID, joining the voice chat when there is none.
func (h *Handlers) session(ctx context.Context, chatID int64, title string) (*vc.Session, error) {
	if s, ok := h.Registry.Get(chatID); ok {
		return s, nil
	}
	maxLen := queue.DefaultMax
	if config.Conf != nil {
		maxLen = config.Conf.MaxQueueLength
	}
	if h.Settings != nil {
		dctx, cancel := db.Ctx()
		maxLen = h.Settings.GetMaxQueue(dctx, chatID, maxLen)
		cancel()
	}

	s, err := h.Registry.Join(ctx, chatID, title, maxLen)
	if errors.Is(err, vc.ErrAlreadyJoined) {
		// Someone else joined first; wait for their join to land.
		for i := 0; i < 50; i++ {
			if s, ok := h.Registry.Get(chatID); ok {
				return s, nil
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
	if err == nil && h.Notifier != nil {
		h.Notifier.Log("▶️ Joined the voice chat of <b>%s</b> (<code>%d</code>)", html.EscapeString(title), chatID)
	}
	return s, err
}

// play enqueues t in chatID and reports the outcome by editing status.
func (h *Handlers) play(m *telegram.NewMessage, status *telegram.NewMessage, chatID int64, langCode string, t *queue.Track) error {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout())
	defer cancel()

	s, err := h.session(ctx, chatID, chatTitle(m))
	if err != nil {
		gologging.WarnF("[play] Joining %d failed: %v", chatID, err)
		return h.editErr(status, m, langCode, err)
	}

	pos, err := s.Enqueue(ctx, t)
	if err != nil {
		return h.editErr(status, m, langCode, err)
	}

	if pos == 0 {
		msg, err := status.Edit(nowPlayingText(langCode, t), telegram.SendOptions{ReplyMarkup: core.ControlButtons("play"), LinkPreview: false})
		if err != nil {
			gologging.WarnF("[play] Edit message failed: %v", err)
			return nil
		}
		if h.Notifier != nil {
			h.Notifier.Announced(chatID, msg)
		}
		return nil
	}

	text := lang.Format(langCode, "play_queued", pos, trackLink(t), cache.SecToMin(t.Duration), requester(t))
	if _, err := status.Edit(text, telegram.SendOptions{LinkPreview: false}); err != nil {
		gologging.WarnF("[play] Edit message failed: %v", err)
	}
	if h.Notifier != nil {
		h.Notifier.Transient(status, m)
	}
	return nil
}

// editErr replaces status with the explanation of err and lets both messages expire.
func (h *Handlers) editErr(status, m *telegram.NewMessage, langCode string, err error) error {
	text := lang.GetString(langCode, errorKey(err))
	if errors.Is(err, dl.ErrDurationExceeded) && config.Conf != nil {
		text = lang.Format(langCode, "err_too_long_limit", cache.SecToMin(config.Conf.MaxDurationMember), cache.SecToMin(config.Conf.MaxDurationAdmin))
	}
	if _, e := status.Edit(text, telegram.SendOptions{LinkPreview: false}); e != nil {
		gologging.WarnF("[play] Edit message failed: %v", e)
	}
	if h.Notifier != nil {
		h.Notifier.Transient(status, m)
	}
	return nil
}

// playHandler handles /play: an audio reply, a supported link, a direct audio URL or a search.
// Without input it shows the queue.
func (h *Handlers) playHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	userID := m.SenderID()
	limit := h.durationLimit(context.Background(), chatID, userID)

	target := m
	if m.IsReply() {
		if reply, err := m.GetReplyMessage(); err == nil && reply != nil {
			target = reply
		}
	}

	if up, ok := audioUpload(target); ok {
		t := queue.NewUpload(up.docID, up.fileRef, up.title, up.duration, up.link, userID)
		t.AddedByName = senderName(m)
		t.Limit = limit
		if limit > 0 && up.duration > limit {
			return h.replyTemp(m, lang.Format(langCode, "err_too_long_yours", cache.SecToMin(limit)))
		}
		status, err := m.Reply(lang.GetString(langCode, "play_downloading"))
		if err != nil {
			return err
		}
		return h.play(m, status, chatID, langCode, t)
	}

	input := strings.TrimSpace(coalesce(getUrl(m), m.Args()))
	if input == "" && target != m {
		input = strings.TrimSpace(coalesce(getUrl(target), target.Text()))
	}
	if input == "" {
		if s, ok := h.Registry.Get(chatID); ok {
			return h.replyTemp(m, queueText(langCode, s.Status(), time.Now()))
		}
		return h.replyTemp(m, lang.GetString(langCode, "play_usage"))
	}
	if dl.Classify(input) == dl.InputExcluded {
		return h.replyErr(m, langCode, dl.ErrUnsupportedLink)
	}

	status, err := m.Reply(lang.Format(langCode, "play_searching", html.EscapeString(truncate(input, 64))))
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	item, err := h.Resolver.Resolve(rctx, input)
	cancel()
	if err != nil {
		gologging.InfoF("[play] Resolving %q failed: %v", input, err)
		return h.editErr(status, m, langCode, err)
	}
	return h.playItem(m, status, chatID, langCode, item, userID, senderName(m), limit)
}

// playItem checks a resolved item against the requester's limit and plays it.
func (h *Handlers) playItem(m, status *telegram.NewMessage, chatID int64, langCode string, item *dl.Item, userID int64, name string, limit int) error {
	if limit > 0 && item.Duration > limit {
		text := lang.Format(langCode, "err_too_long_yours", cache.SecToMin(limit))
		if _, err := status.Edit(text); err != nil {
			gologging.WarnF("[play] Edit message failed: %v", err)
		}
		if h.Notifier != nil {
			h.Notifier.Transient(status, m)
		}
		return nil
	}

	t := queue.NewWeb(item.Prefix, item.ID, item.Title, item.Duration, item.URL, userID)
	t.AddedByName = name
	t.Limit = limit
	if _, err := status.Edit(lang.Format(langCode, "play_downloading_item", trackLink(t)), telegram.SendOptions{LinkPreview: false}); err != nil {
		gologging.DebugF("[play] Edit message failed: %v", err)
	}
	return h.play(m, status, chatID, langCode, t)
}

// searchHandler handles /search, offering the top results as buttons.
func (h *Handlers) searchHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	query := strings.TrimSpace(m.Args())
	if query == "" {
		return h.replyTemp(m, lang.GetString(langCode, "search_usage"))
	}

	status, err := m.Reply(lang.Format(langCode, "play_searching", html.EscapeString(truncate(query, 64))))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	items, err := h.Search.Top(ctx, query, searchResults)
	if err != nil {
		return h.editErr(status, m, langCode, err)
	}

	titles := make([]string, len(items))
	var b strings.Builder
	b.WriteString(lang.Format(langCode, "search_header", html.EscapeString(query)))
	for i, it := range items {
		titles[i] = truncate(it.Title, 40)
		b.WriteString(fmt.Sprintf("%d. <a href=\"%s\">%s</a> (%s)\n", i+1, html.EscapeString(it.URL), html.EscapeString(truncate(it.Title, 60)), cache.SecToMin(it.Duration)))
	}

	msg, err := status.Edit(b.String(), telegram.SendOptions{ReplyMarkup: core.SearchKeyboard(titles), LinkPreview: false})
	if err != nil {
		return err
	}
	h.searches.Set(searchKey(chatID, msg.ID), searchResult{UserID: m.SenderID(), Items: items, Command: m, Results: msg})
	return nil
}

func searchKey(chatID int64, msgID int32) string {
	return fmt.Sprintf("%d:%d", chatID, msgID)
}
