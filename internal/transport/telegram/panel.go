package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Callback data is "panel:command" or "panel:command:arg". Telegram caps it
// at 64 bytes, which every entry below fits.
const panelPrefix = "panel"

var panelButtons = []struct {
	text, cmd, arg string
}{
	{"Stop", "stop", ""},
	{"Clock", "clock", ""},
	{"Feed", "feed", ""},
	{"Test", "test", ""},
	{"Countdown 5:00", "countdown", "300"},
	{"Countdown 1:00", "countdown", "60"},
	{"Read inbox", "readinbox", ""},
	{"Clear inbox", "clearinbox", ""},
	{"Status", "status", ""},
}

func panelData(cmd, arg string) string {
	if arg == "" {
		return panelPrefix + ":" + cmd
	}
	return panelPrefix + ":" + cmd + ":" + arg
}

// parsePanelData turns callback data back into command text for the router.
func parsePanelData(data string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] != panelPrefix || parts[1] == "" {
		return "", false
	}
	text := "/" + parts[1]
	if len(parts) == 3 && parts[2] != "" {
		text += " " + parts[2]
	}
	return text, true
}

// panelMarkup lays the buttons out two per row.
func panelMarkup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	btns := make([]tele.Btn, 0, len(panelButtons))
	for _, b := range panelButtons {
		btns = append(btns, tele.Btn{Text: b.text, Data: panelData(b.cmd, b.arg)})
	}
	rm.Inline(rm.Split(2, btns)...)
	return rm
}

// callbackText fits reply into an answerCallbackQuery notification.
func callbackText(reply string) string {
	const limit = 200
	if r := []rune(reply); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return reply
}
