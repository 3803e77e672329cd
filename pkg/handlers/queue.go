package handlers

import (
	"time"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	tg "github.com/amarnathcjd/gogram/telegram"
)

const maxMessageLength = 4096

// queueHandler displays the current playback queue.
func (h *Handlers) queueHandler(m *tg.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	s, ok := h.Registry.Get(chatID)
	if !ok {
		return h.replyErr(m, langCode, vc.ErrNotJoined)
	}

	st := s.Status()
	text := queueText(langCode, st, time.Now())
	if len(text) > maxMessageLength {
		text = lang.Format(langCode, "queue_short_summary", len(st.Tracks), st.Max) + currentText(langCode, st, time.Now())
	}
	return h.replyTemp(m, text)
}

// currentHandler shows the playing track and how far it got.
func (h *Handlers) currentHandler(m *tg.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	s, ok := h.Registry.Get(chatID)
	if !ok {
		return h.replyErr(m, langCode, vc.ErrNotJoined)
	}

	st := s.Status()
	text := currentText(langCode, st, time.Now())
	if la := st.Lookahead(); len(la) > 1 {
		text += lang.Format(langCode, "current_next", trackLink(st.Tracks[1]))
	}
	if st.Current() == nil {
		return h.replyTemp(m, text)
	}
	_, err = m.Reply(text, tg.SendOptions{ReplyMarkup: core.ControlButtons(controlMode(st)), LinkPreview: false})
	return err
}

// controlMode picks the control keyboard matching st.
func controlMode(st vc.Status) string {
	switch {
	case st.State == vc.Paused:
		return "pause"
	case st.Muted:
		return "mute"
	case st.State == vc.Playing || st.State == vc.Buffering:
		return "play"
	default:
		return ""
	}
}
