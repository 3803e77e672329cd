package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core/cache"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

const (
	reloadCooldown = 3 * time.Minute
	joinTimeout    = 45 * time.Second
	controlTimeout = 15 * time.Second
)

// joinHandler handles /join.
func (h *Handlers) joinHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	if _, ok := h.Registry.Get(chatID); ok {
		return h.replyErr(m, langCode, vc.ErrAlreadyJoined)
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	if _, err := h.session(ctx, chatID, chatTitle(m)); err != nil {
		gologging.WarnF("[join] %d: %v", chatID, err)
		return h.replyErr(m, langCode, err)
	}
	return h.replyTemp(m, lang.Format(langCode, "join_success", mention(m)))
}

// leaveHandler handles /leave.
func (h *Handlers) leaveHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := h.Registry.Leave(ctx, chatID); err != nil {
		if !errors.Is(err, vc.ErrNotJoined) {
			gologging.WarnF("[leave] %d: %v", chatID, err)
		}
		return h.replyErr(m, langCode, err)
	}
	if h.Notifier != nil {
		h.Notifier.Forget(chatID)
	}
	return h.replyTemp(m, lang.Format(langCode, "leave_success", mention(m)))
}

// replayHandler handles /replay.
func (h *Handlers) replayHandler(m *telegram.NewMessage) error {
	s, langCode, ok := h.activeSession(m)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	if err := s.Replay(ctx); err != nil {
		return h.replyErr(m, langCode, err)
	}
	return h.replyTemp(m, lang.Format(langCode, "replay_success", mention(m)))
}

// setMaxHandler handles /setmax <n>. The limit is stored for the chat and applied to
// the running session; tracks beyond it stay queued.
func (h *Handlers) setMaxHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)

	n, err := strconv.Atoi(strings.TrimSpace(m.Args()))
	if err != nil || n < 1 {
		return h.replyTemp(m, lang.GetString(langCode, "setmax_usage"))
	}

	if s, ok := h.Registry.Get(chatID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		err := s.SetMax(ctx, n)
		cancel()
		if err != nil {
			return h.replyErr(m, langCode, err)
		}
	}
	if h.Settings != nil {
		ctx, cancel := db.Ctx()
		defer cancel()
		if err := h.Settings.SetMaxQueue(ctx, chatID, n); err != nil {
			gologging.WarnF("[setmax] Saving %d for %d: %v", n, chatID, err)
		}
	}
	return h.replyTemp(m, lang.Format(langCode, "setmax_success", n))
}

// reloadAdminCacheHandler reloads the admin cache for a chat.
func (h *Handlers) reloadAdminCacheHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)

	reloadKey := fmt.Sprintf("reload:%d", chatID)
	if lastUsed, ok := h.reloads.Get(reloadKey); ok {
		if passed := time.Since(lastUsed); passed < reloadCooldown {
			remaining := int((reloadCooldown - passed).Seconds())
			return h.replyTemp(m, lang.Format(langCode, "reload_cooldown", cache.SecToMin(remaining)))
		}
	}
	h.reloads.Set(reloadKey, time.Now())

	reply, err := m.Reply(lang.GetString(langCode, "reloading_admins"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	admins, err := h.Admins.Admins(ctx, chatID, true)
	if err != nil {
		gologging.WarnF("Failed to reload the admin cache for chat %d: %v", chatID, err)
		_, _ = reply.Edit(lang.GetString(langCode, "reload_error"))
		return nil
	}

	gologging.InfoF("Reloaded %d admins for chat %d", len(admins), chatID)
	_, err = reply.Edit(lang.Format(langCode, "reload_success", len(admins)))
	return err
}
