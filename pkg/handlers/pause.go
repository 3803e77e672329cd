package handlers

import (
	"context"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/amarnathcjd/gogram/telegram"
)

// pauseHandler handles the /pause command.
func (h *Handlers) pauseHandler(m *telegram.NewMessage) error {
	s, langCode, ok := h.activeSession(m)
	if !ok {
		return nil
	}
	if err := s.Pause(context.Background()); err != nil {
		return h.replyErr(m, langCode, err)
	}

	_, err := m.Reply(lang.Format(langCode, "pause_success", mention(m)), telegram.SendOptions{ReplyMarkup: core.ControlButtons("pause")})
	return err
}

// resumeHandler handles the /resume command.
func (h *Handlers) resumeHandler(m *telegram.NewMessage) error {
	s, langCode, ok := h.activeSession(m)
	if !ok {
		return nil
	}
	if err := s.Resume(context.Background()); err != nil {
		return h.replyErr(m, langCode, err)
	}

	_, err := m.Reply(lang.Format(langCode, "resume_success", mention(m)), telegram.SendOptions{ReplyMarkup: core.ControlButtons("resume")})
	return err
}
