package handlers

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/lang"
	"github.com/zuchzub/vcplayer/pkg/vc"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

func cbMention(cb *telegram.CallbackQuery) string {
	name := strconv.FormatInt(cb.SenderID, 10)
	if cb.Sender != nil {
		name = coalesce(cb.Sender.FirstName, name)
	}
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", cb.SenderID, html.EscapeString(name))
}

// playCallbackHandler handles the control keyboard under now-playing messages.
// Skipping is open to whoever queued the current track; everything else needs a moderator.
func (h *Handlers) playCallbackHandler(cb *telegram.CallbackQuery) error {
	data := cb.DataString()
	chatID, err := getPeerId(cb.Client, cb.ChatID)
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	alert := &telegram.CallbackOptions{Alert: true}

	s, ok := h.Registry.Get(chatID)
	if !ok {
		text := lang.GetString(langCode, "err_not_joined")
		_, _ = cb.Answer(text, alert)
		_, _ = cb.Edit(text, &telegram.SendOptions{ReplyMarkup: core.ControlButtons("")})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()
	moderator := h.isModerator(ctx, chatID, cb.SenderID)

	if data == "play_skip" {
		_, err := s.Skip(ctx, vc.SkipRequest{UserID: cb.SenderID, Moderator: moderator})
		if err != nil {
			_, _ = cb.Answer(lang.GetString(langCode, errorKey(err)), alert)
			return nil
		}
		_, _ = cb.Answer(lang.GetString(langCode, "track_skipped"), alert)
		_, _ = cb.Delete()
		return nil
	}

	if !moderator {
		_, _ = cb.Answer(lang.GetString(langCode, "admins_only"), alert)
		return nil
	}

	var (
		opErr error
		key   string
		mode  string
	)
	switch data {
	case "play_stop":
		opErr, key = s.Stop(ctx), "playback_stopped"
	case "play_replay":
		opErr, key, mode = s.Replay(ctx), "replay_success", "play"
	case "play_pause":
		opErr, key, mode = s.Pause(ctx), "pause_success", "pause"
	case "play_resume":
		opErr, key, mode = s.Resume(ctx), "resume_success", "resume"
	case "play_mute":
		opErr, key, mode = s.Mute(ctx, true), "mute_success", "mute"
	case "play_unmute":
		opErr, key, mode = s.Mute(ctx, false), "unmute_success", "unmute"
	default:
		gologging.DebugF("Unknown play callback %q", data)
		return nil
	}
	if opErr != nil {
		_, _ = cb.Answer(lang.GetString(langCode, errorKey(opErr)), alert)
		return nil
	}
	_, _ = cb.Answer(lang.GetString(langCode, "callback_done"))

	text := lang.Format(langCode, key, cbMention(cb))
	if data == "play_stop" {
		if h.Notifier != nil {
			h.Notifier.Forget(chatID)
		}
		_, err = cb.Edit(text, &telegram.SendOptions{ReplyMarkup: core.ControlButtons("")})
		return err
	}
	if cur := s.Status().Current(); cur != nil {
		text = nowPlayingText(langCode, cur) + "\n" + text
	}
	_, err = cb.Edit(text, &telegram.SendOptions{ReplyMarkup: core.ControlButtons(mode)})
	return err
}

// pickCallbackHandler plays the search result the user picked.
func (h *Handlers) pickCallbackHandler(cb *telegram.CallbackQuery) error {
	chatID, err := getPeerId(cb.Client, cb.ChatID)
	if err != nil {
		return err
	}
	langCode := h.lang(chatID)
	alert := &telegram.CallbackOptions{Alert: true}

	key := searchKey(chatID, cb.MessageID)
	res, ok := h.searches.Get(key)
	if !ok {
		_, _ = cb.Answer(lang.GetString(langCode, "search_expired"), alert)
		_, _ = cb.Delete()
		return nil
	}
	if res.UserID != cb.SenderID {
		_, _ = cb.Answer(lang.GetString(langCode, "search_not_yours"), alert)
		return nil
	}

	i, err := strconv.Atoi(strings.TrimPrefix(cb.DataString(), "pick_"))
	if err != nil || i < 0 || i >= len(res.Items) {
		_, _ = cb.Answer(lang.GetString(langCode, "err_invalid_index"), alert)
		return nil
	}
	h.searches.Delete(key)
	_, _ = cb.Answer(lang.GetString(langCode, "callback_done"))

	name := strconv.FormatInt(cb.SenderID, 10)
	if cb.Sender != nil {
		name = coalesce(cb.Sender.FirstName, name)
	}
	limit := h.durationLimit(context.Background(), chatID, cb.SenderID)
	return h.playItem(res.Command, res.Results, chatID, langCode, res.Items[i], cb.SenderID, name, limit)
}

// vcPlayHandler handles callbacks from the vcplay keyboard.
func (h *Handlers) vcPlayHandler(cb *telegram.CallbackQuery) error {
	data := cb.DataString()
	if data == "vcplay_close" {
		chatID, _ := getPeerId(cb.Client, cb.ChatID)
		_, _ = cb.Answer(lang.GetString(h.lang(chatID), "closed"))
		h.searches.Delete(searchKey(chatID, cb.MessageID))
		_, _ = cb.Delete()
		return nil
	}
	gologging.InfoF("vcPlayHandler: %s", data)
	return nil
}
