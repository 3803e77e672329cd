package handlers

import (
	"html"

	"github.com/zuchzub/vcplayer/pkg/core"
	"github.com/zuchzub/vcplayer/pkg/lang"

	"github.com/amarnathcjd/gogram/telegram"
)

type helpCategory struct {
	Title   string
	Content string
	Markup  *telegram.ReplyInlineMarkup
}

func getHelpCategories(langCode string) map[string]helpCategory {
	categories := make(map[string]helpCategory, 3)
	for _, key := range []string{"help_user", "help_admin", "help_devs"} {
		categories[key] = helpCategory{
			Title:   lang.GetString(langCode, key+"_title"),
			Content: lang.GetString(langCode, key+"_content"),
			Markup:  core.BackHelpMenuKeyboard(),
		}
	}
	return categories
}

func startText(langCode, userName, botName string) string {
	return lang.Format(langCode, "start_text", html.EscapeString(userName), html.EscapeString(botName))
}

// helpHandler handles /help.
func (h *Handlers) helpHandler(m *telegram.NewMessage) error {
	langCode := h.lang(m.ChatID())
	_, err := m.Reply(startText(langCode, senderName(m), m.Client.Me().FirstName), telegram.SendOptions{
		ReplyMarkup: core.HelpMenuKeyboard(),
	})
	return err
}

// helpCallbackHandler handles callbacks from the help keyboard.
func (h *Handlers) helpCallbackHandler(cb *telegram.CallbackQuery) error {
	data := cb.DataString()
	chatID, _ := getPeerId(cb.Client, cb.ChatID)
	langCode := h.lang(chatID)

	userName := ""
	if cb.Sender != nil {
		userName = cb.Sender.FirstName
	}
	me := cb.Client.Me()

	switch data {
	case "help_all":
		_, _ = cb.Answer(lang.GetString(langCode, "opening_help_menu"))
		_, _ = cb.Edit(startText(langCode, userName, me.FirstName), &telegram.SendOptions{ReplyMarkup: core.HelpMenuKeyboard()})
		return nil
	case "help_back":
		_, _ = cb.Answer(lang.GetString(langCode, "returning_to_home"))
		_, _ = cb.Edit(startText(langCode, userName, me.FirstName), &telegram.SendOptions{ReplyMarkup: core.AddMeMarkup(me.Username)})
		return nil
	}

	if category, ok := getHelpCategories(langCode)[data]; ok {
		_, _ = cb.Answer(lang.Format(langCode, "opening_category", category.Title))
		text := lang.Format(langCode, "help_category_text", category.Title, category.Content)
		_, _ = cb.Edit(text, &telegram.SendOptions{ReplyMarkup: category.Markup})
		return nil
	}

	_, _ = cb.Answer(lang.GetString(langCode, "unknown_command_category"), &telegram.CallbackOptions{Alert: true})
	return nil
}
