package handlers

import (
	"context"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/amarnathcjd/gogram/telegram"
)

// muteHandler handles the /mute command.
func (h *Handlers) muteHandler(m *telegram.NewMessage) error {
	return h.setMuted(m, true)
}

// unmuteHandler handles the /unmute command.
func (h *Handlers) unmuteHandler(m *telegram.NewMessage) error {
	return h.setMuted(m, false)
}

func (h *Handlers) setMuted(m *telegram.NewMessage, muted bool) error {
	s, langCode, ok := h.activeSession(m)
	if !ok {
		return nil
	}
	if err := s.Mute(context.Background(), muted); err != nil {
		return h.replyErr(m, langCode, err)
	}

	key, mode := "unmute_success", "unmute"
	if muted {
		key, mode = "mute_success", "mute"
	}
	_, err := m.Reply(lang.Format(langCode, key, mention(m)), telegram.SendOptions{ReplyMarkup: core.ControlButtons(mode)})
	return err
}
