package handlers

import (
	"context"

	"github.com/zuchzub/vcplayer/pkg/config"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

// isDev checks if the user is a developer.
func isDev(m *telegram.NewMessage) bool {
	return config.Conf != nil && config.Conf.IsDev(m.SenderID())
}

// inGroup passes group messages that were not handled before.
func (h *Handlers) inGroup(m *telegram.NewMessage) bool {
	if m.IsPrivate() {
		return false
	}
	if h.Gate != nil && !h.Gate.First(m.ChatID(), m.ID) {
		gologging.DebugF("Dropping repeated message %d in %d", m.ID, m.ChatID())
		return false
	}
	return true
}

// moderatorOnly passes group messages from chat admins and developers.
func (h *Handlers) moderatorOnly(m *telegram.NewMessage) bool {
	if !h.inGroup(m) {
		return false
	}
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		gologging.WarnF("getPeerId error: %v", err)
		return false
	}
	if h.isModerator(context.Background(), chatID, m.SenderID()) {
		return true
	}
	_ = h.replyTemp(m, lang.GetString(h.lang(chatID), "admins_only"))
	return false
}

// isModerator reports whether userID may control playback of chatID for everyone.
// A failed admin lookup counts as no.
func (h *Handlers) isModerator(ctx context.Context, chatID, userID int64) bool {
	if config.Conf != nil && config.Conf.IsDev(userID) {
		return true
	}
	if h.Admins == nil {
		return false
	}
	ok, err := h.Admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		gologging.WarnF("IsAdmin error for %d in %d: %v", userID, chatID, err)
		return false
	}
	return ok
}

// lang returns the language of chatID.
func (h *Handlers) lang(chatID int64) string {
	if h.Settings == nil {
		return lang.DefaultLang
	}
	ctx, cancel := db.Ctx()
	defer cancel()
	return h.Settings.GetLang(ctx, chatID)
}

// replyTemp replies to m and removes both messages after the transient delay.
func (h *Handlers) replyTemp(m *telegram.NewMessage, text string) error {
	reply, err := m.Reply(text, telegram.SendOptions{LinkPreview: false})
	if err != nil {
		return err
	}
	if h.Notifier != nil {
		h.Notifier.Transient(reply, m)
	}
	return nil
}

// replyErr explains err to the chat as a transient reply.
func (h *Handlers) replyErr(m *telegram.NewMessage, langCode string, err error) error {
	return h.replyTemp(m, lang.GetString(langCode, errorKey(err)))
}

// activeSession resolves the chat of m and its session. When there is none it has already
// answered and ok is false.
func (h *Handlers) activeSession(m *telegram.NewMessage) (s *vc.Session, langCode string, ok bool) {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		gologging.WarnF("getPeerId error: %v", err)
		return nil, lang.DefaultLang, false
	}
	langCode = h.lang(chatID)
	s, ok = h.Registry.Get(chatID)
	if !ok {
		_ = h.replyErr(m, langCode, vc.ErrNotJoined)
	}
	return s, langCode, ok
}
