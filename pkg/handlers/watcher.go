package handlers

import (
	"context"
	"time"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

const watcherTimeout = 20 * time.Second

// handleVoiceChat ends the session of a chat whose voice chat was closed.
func (h *Handlers) handleVoiceChat(upd telegram.Update, c *telegram.Client) error {
	update, ok := upd.(*telegram.UpdateNewChannelMessage)
	if !ok {
		return nil
	}
	msg, ok := update.Message.(*telegram.MessageService)
	if !ok {
		return nil
	}
	action, ok := msg.Action.(*telegram.MessageActionGroupCall)
	if !ok {
		gologging.DebugF("Unhandled action type: %T", msg.Action)
		return nil
	}

	chatID, err := getPeerId(c, msg.PeerID)
	if err != nil {
		return nil
	}
	langCode := h.lang(chatID)
	if action.Duration == 0 {
		gologging.DebugF("Voice chat started in %d", chatID)
		return nil
	}

	gologging.InfoF("Voice chat of %d ended after %d seconds", chatID, action.Duration)
	if h.leaveSession(chatID) {
		_, _ = c.SendMessage(chatID, lang.GetString(langCode, "watcher_vc_ended"))
	}
	return nil
}

// leaveSession destroys the session of chatID if there is one.
func (h *Handlers) leaveSession(chatID int64) bool {
	if _, ok := h.Registry.Get(chatID); !ok {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), watcherTimeout)
	defer cancel()
	if err := h.Registry.Leave(ctx, chatID); err != nil {
		gologging.WarnF("Leaving %d: %v", chatID, err)
	}
	if h.Notifier != nil {
		h.Notifier.Forget(chatID)
	}
	return true
}

// handleParticipant tracks membership changes of the bot and the chat's assistant.
func (h *Handlers) handleParticipant(pu *telegram.ParticipantUpdate) error {
	if pu == nil || pu.Channel == nil {
		gologging.ErrorF("[handleParticipant] Received nil participant update or nil channel")
		return nil
	}

	client := pu.Client
	chatID, err := getPeerId(client, pu.Channel.ID)
	if err != nil {
		return nil
	}
	userID := pu.UserID()
	if chatID > 0 {
		_, _ = client.SendMessage(chatID, lang.Format(h.lang(chatID), "watcher_not_supergroup", chatID), &telegram.SendOptions{
			ReplyMarkup: core.AddMeMarkup(client.Me().Username),
			LinkPreview: false,
		})
		time.Sleep(time.Second)
		_ = client.LeaveChannel(pu.ChannelID())
		return nil
	}

	if h.Settings != nil {
		go func() {
			ctx, cancel := db.Ctx()
			defer cancel()
			_ = h.Settings.AddChat(ctx, chatID)
		}()
	}

	oldStatus := getStatusFromParticipant(pu.Old)
	newStatus := getStatusFromParticipant(pu.New)
	gologging.DebugF("[handleParticipant] old=%s new=%s chat=%d user=%d", oldStatus, newStatus, chatID, userID)

	ubID := h.assistantID(chatID)
	botID := client.Me().ID
	if userID != ubID && userID != botID {
		// Anyone else's promotion or demotion changes who may moderate.
		if oldStatus == telegram.Admin || newStatus == telegram.Admin || newStatus == telegram.Creator {
			h.invalidateAdmins(chatID)
		}
		return nil
	}

	if userID == ubID && h.Assistants != nil {
		h.Assistants.UpdateMembership(chatID, userID, newStatus)
	}

	switch {
	case newStatus == telegram.Left || newStatus == telegram.Kicked:
		who := "bot"
		if userID == ubID {
			who = "assistant"
		}
		gologging.InfoF("The %s left or was removed from %d", who, chatID)
		h.leaveSession(chatID)
		if userID == ubID && newStatus == telegram.Kicked {
			_, _ = client.SendMessage(chatID, lang.Format(h.lang(chatID), "watcher_assistant_banned", ubID))
		}
	case userID == botID && oldStatus != newStatus:
		gologging.InfoF("bot is now %s in %d", newStatus, chatID)
		h.invalidateAdmins(chatID)
	}
	return nil
}

func (h *Handlers) invalidateAdmins(chatID int64) {
	if h.Admins != nil {
		h.Admins.Invalidate(chatID)
	}
}

// assistantID is the user ID of the assistant serving chatID, or 0.
func (h *Handlers) assistantID(chatID int64) int64 {
	if h.Assistants == nil {
		return 0
	}
	ctx, cancel := db.Ctx()
	defer cancel()
	ub, err := h.Assistants.GetGroupAssistant(ctx, chatID)
	if err != nil || ub.App.Me() == nil {
		gologging.DebugF("[handleParticipant] No assistant for %d: %v", chatID, err)
		return 0
	}
	return ub.App.Me().ID
}

// getStatusFromParticipant gets the status from a participant.
// It takes a telegram.ChannelParticipant object as input.
// It returns the status of the participant as a string.
func getStatusFromParticipant(p telegram.ChannelParticipant) string {
	switch p.(type) {
	case *telegram.ChannelParticipantCreator:
		return telegram.Creator
	case *telegram.ChannelParticipantAdmin:
		return telegram.Admin
	case *telegram.ChannelParticipantSelf, *telegram.ChannelParticipantObj:
		return telegram.Member
	case *telegram.ChannelParticipantLeft:
		return telegram.Left
	case *telegram.ChannelParticipantBanned:
		return telegram.Kicked
	case nil:
		return telegram.Left
	default:
		gologging.WarnF("Unknown participant type: %T", p)
		return telegram.Restricted
	}
}
