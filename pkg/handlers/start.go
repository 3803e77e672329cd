package handlers

import (
	"time"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/core/db"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/Laky-64/gologging"
	"github.com/amarnathcjd/gogram/telegram"
)

// pingHandler handles the /ping command.
func (h *Handlers) pingHandler(m *telegram.NewMessage) error {
	start := time.Now()
	msg, err := m.Reply("⏱️ Pinging...")
	if err != nil {
		return err
	}
	latency := time.Since(start).Milliseconds()
	uptime := time.Since(startTime).Truncate(time.Second)

	response := lang.Format(h.lang(m.ChatID()), "ping_text", latency, uptime, h.Registry.Len())
	_, err = msg.Edit(response)
	return err
}

// startHandler handles the /start command.
func (h *Handlers) startHandler(m *telegram.NewMessage) error {
	chatID, err := getPeerId(m.Client, m.ChatID())
	if err != nil {
		return err
	}

	if h.Settings != nil {
		private := m.IsPrivate()
		go func() {
			ctx, cancel := db.Ctx()
			defer cancel()
			var err error
			if private {
				err = h.Settings.AddUser(ctx, chatID)
			} else {
				err = h.Settings.AddChat(ctx, chatID)
			}
			if err != nil {
				gologging.DebugF("Recording %d: %v", chatID, err)
			}
		}()
	}

	bot := m.Client.Me()
	_, err = m.Reply(startText(h.lang(chatID), senderName(m), bot.FirstName), telegram.SendOptions{
		ReplyMarkup: core.AddMeMarkup(bot.Username),
	})
	return err
}
