package handlers

import (
	"context"
	"strings"

	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

// skipHandler handles /skip [n ...]. Without positions it skips the playing track.
// Members may only skip tracks they added.
func (h *Handlers) skipHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	s, ok := h.Registry.Get(chatID)
	if !ok {
		return h.replyErr(m, langCode, vc.ErrNotJoined)
	}

	indices, err := parseIndices(m.Args())
	if err != nil {
		return h.replyTemp(m, lang.GetString(langCode, "skip_usage"))
	}

	ctx := context.Background()
	userID := m.SenderID()
	req := vc.SkipRequest{
		UserID:    userID,
		Moderator: h.isModerator(ctx, chatID, userID),
		Indices:   indices,
	}
	rep, err := s.Skip(ctx, req)
	text := skipText(langCode, rep)
	if err != nil {
		gologging.DebugF("[skip] chat %d user %d: %v", chatID, userID, err)
		text += lang.GetString(langCode, errorKey(err))
	}
	if strings.TrimSpace(text) == "" {
		text = lang.GetString(langCode, "skip_nothing")
	}
	return h.replyTemp(m, text)
}
