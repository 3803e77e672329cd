package handlers

import (
	"context"

	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/amarnathcjd/gogram/telegram"
)

// stopHandler handles the /stop command. The assistant stays in the voice chat.
func (h *Handlers) stopHandler(m *telegram.NewMessage) error {
	s, langCode, ok := h.activeSession(m)
	if !ok {
		return nil
	}
	if err := s.Stop(context.Background()); err != nil {
		return h.replyErr(m, langCode, err)
	}
	if h.Notifier != nil {
		h.Notifier.Forget(s.ChatID())
	}
	return h.replyTemp(m, lang.Format(langCode, "playback_stopped", mention(m)))
}
