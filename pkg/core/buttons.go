package core

import (
	"fmt"

	"github.com/amarnathcjd/gogram/telegram"
)

// CloseBtn is a button that closes the current view.
var CloseBtn = telegram.Button.Data("Cʟᴏsᴇ", "vcplay_close")

// HomeBtn is a button that returns to the home screen.
var HomeBtn = telegram.Button.Data("Hᴏᴍᴇ", "help_back")

// HelpBtn is a button that displays the help menu.
var HelpBtn = telegram.Button.Data("Hᴇʟᴘ & Cᴏᴍᴍᴀɴᴅꜱ", "help_all")

// UserBtn is a button that displays the user commands.
var UserBtn = telegram.Button.Data("Uꜱᴇʀ Cᴏᴍᴍᴀɴᴅꜱ", "help_user")

// AdminBtn is a button that displays the admin commands.
var AdminBtn = telegram.Button.Data("Aᴅᴍɪɴ Cᴏᴍᴍᴀɴᴅꜱ", "help_admin")

// DevsBtn is a button that displays the developer commands.
var DevsBtn = telegram.Button.Data("Dᴇᴠꜱ Cᴏᴍᴍᴀɴᴅꜱ", "help_devs")

// HelpMenuKeyboard creates and returns an inline keyboard with buttons for navigating the help menu.
func HelpMenuKeyboard() *telegram.ReplyInlineMarkup {
	keyboard := telegram.NewKeyboard().
		AddRow(UserBtn, AdminBtn).
		AddRow(DevsBtn).
		AddRow(CloseBtn, HomeBtn)

	return keyboard.Build()
}

// BackHelpMenuKeyboard creates and returns an inline keyboard with buttons to return to the main help menu.
func BackHelpMenuKeyboard() *telegram.ReplyInlineMarkup {
	keyboard := telegram.NewKeyboard().
		AddRow(HelpBtn, HomeBtn).
		AddRow(CloseBtn)

	return keyboard.Build()
}

// ControlButtons creates the playback controls shown under a now playing message.
// mode is "play", "pause", "resume", "mute" or "unmute" and decides which toggles are offered.
func ControlButtons(mode string) *telegram.ReplyInlineMarkup {
	skipBtn := telegram.Button.Data("‣‣I", "play_skip")
	stopBtn := telegram.Button.Data("▢", "play_stop")
	replayBtn := telegram.Button.Data("↻", "play_replay")
	pauseBtn := telegram.Button.Data("II", "play_pause")
	resumeBtn := telegram.Button.Data("▷", "play_resume")
	muteBtn := telegram.Button.Data("🔇", "play_mute")
	unmuteBtn := telegram.Button.Data("🔊", "play_unmute")

	var keyboard *telegram.KeyboardBuilder

	switch mode {
	case "play", "resume":
		keyboard = telegram.NewKeyboard().AddRow(skipBtn, stopBtn, pauseBtn, replayBtn).AddRow(muteBtn, CloseBtn)
	case "pause":
		keyboard = telegram.NewKeyboard().AddRow(skipBtn, stopBtn, resumeBtn, replayBtn).AddRow(CloseBtn)
	case "mute":
		keyboard = telegram.NewKeyboard().AddRow(skipBtn, stopBtn, pauseBtn).AddRow(unmuteBtn, CloseBtn)
	case "unmute":
		keyboard = telegram.NewKeyboard().AddRow(skipBtn, stopBtn, pauseBtn).AddRow(muteBtn, CloseBtn)
	default:
		keyboard = telegram.NewKeyboard().AddRow(CloseBtn)
	}

	return keyboard.Build()
}

// SearchKeyboard offers one button per search result. Data is "pick_<index>".
func SearchKeyboard(titles []string) *telegram.ReplyInlineMarkup {
	keyboard := telegram.NewKeyboard()
	for i, title := range titles {
		keyboard.AddRow(telegram.Button.Data(fmt.Sprintf("%d. %s", i+1, title), fmt.Sprintf("pick_%d", i)))
	}
	keyboard.AddRow(CloseBtn)
	return keyboard.Build()
}

// AddMeMarkup creates and returns an inline keyboard with a button that allows users to add the bot to their group.
// It requires the bot's username to generate the correct link.
func AddMeMarkup(username string) *telegram.ReplyInlineMarkup {
	addMeBtn := telegram.Button.URL("Aᴅᴅ ᴍᴇ ᴛᴏ ʏᴏᴜʀ ɢʀᴏᴜᴘ", fmt.Sprintf("https://t.me/%s?startgroup=true", username))

	keyboard := telegram.NewKeyboard().
		AddRow(addMeBtn).
		AddRow(HelpBtn)

	return keyboard.Build()
}
