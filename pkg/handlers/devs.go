package handlers

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

const devTimeout = 2 * time.Minute

// activeVcHandler handles /vc, listing every session.
func (h *Handlers) activeVcHandler(m *telegram.NewMessage) error {
	langCode := h.lang(m.ChatID())
	sessions := h.Registry.All()
	if len(sessions) == 0 {
		_, err := m.Reply(lang.GetString(langCode, "no_active_chats"))
		return err
	}

	var sb strings.Builder
	sb.WriteString(lang.Format(langCode, "active_chats_header", len(sessions)))
	now := time.Now()
	for _, s := range sessions {
		st := s.Status()
		songInfo := lang.GetString(langCode, "no_song_playing")
		if cur := st.Current(); cur != nil {
			songInfo = lang.Format(langCode, "now_playing_devs", trackLink(cur), cache.SecToMin(cur.Duration))
		}
		sb.WriteString(lang.Format(langCode, "chat_info",
			html.EscapeString(st.ChatTitle),
			st.ChatID,
			lang.GetString(langCode, "state_"+st.State.String()),
			len(st.Tracks),
			now.Sub(st.JoinedAt).Round(time.Second),
			songInfo,
		))
	}

	text := sb.String()
	if len(text) > maxMessageLength {
		text = lang.Format(langCode, "active_chats_header_short", len(sessions))
	}
	_, err := m.Reply(text, telegram.SendOptions{LinkPreview: false})
	return err
}

// leaveAllHandler handles /leaveall.
func (h *Handlers) leaveAllHandler(m *telegram.NewMessage) error {
	langCode := h.lang(m.ChatID())
	reply, err := m.Reply(lang.GetString(langCode, "leaveall_started"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), devTimeout)
	defer cancel()
	left, err := h.Registry.LeaveAll(ctx)
	if err != nil {
		gologging.WarnF("[leaveall] %v", err)
	}
	_, err = reply.Edit(lang.Format(langCode, "leaveall_done", left))
	return err
}

// cleanHandler handles /clean, reclaiming cache files no session needs.
func (h *Handlers) cleanHandler(m *telegram.NewMessage) error {
	langCode := h.lang(m.ChatID())
	removed, err := h.Registry.Reclaim()
	if err != nil {
		gologging.WarnF("[clean] %v", err)
		_, err = m.Reply(lang.Format(langCode, "clean_error", html.EscapeString(err.Error())))
		return err
	}
	_, err = m.Reply(lang.Format(langCode, "clean_done", removed))
	return err
}

// haltHandler handles /halt: saves every queue, leaves all voice chats and stops the bot.
// The saved queues are restored on the next start.
func (h *Handlers) haltHandler(m *telegram.NewMessage) error {
	langCode := h.lang(m.ChatID())
	reply, err := m.Reply(lang.GetString(langCode, "halt_started"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), devTimeout)
	defer cancel()

	saved := h.Registry.Checkpoints()
	if h.Checkpoints != nil {
		if err := h.Checkpoints.Save(ctx, saved); err != nil {
			gologging.ErrorF("[halt] Saving queues: %v", err)
			_, err = reply.Edit(lang.Format(langCode, "halt_error", html.EscapeString(err.Error())))
			return err
		}
	}
	if _, err := h.Registry.LeaveAll(ctx); err != nil {
		gologging.WarnF("[halt] %v", err)
	}
	_, _ = reply.Edit(lang.Format(langCode, "halt_done", len(saved)))

	if h.Shutdown != nil {
		h.Shutdown()
	}
	return nil
}
