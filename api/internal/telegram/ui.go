package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"story-bot/api/internal/story"
	"story-bot/api/internal/util"
)

const (
	optionPrefix   = "opt:"
	maxButtonRunes = 40
)

// optionsKeyboard lays choice options out one per row; callback data carries only the index
// so it stays under Telegram's 64-byte limit.
func optionsKeyboard(options []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options)+1)
	for i, o := range options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(util.Truncate(o, maxButtonRunes), optionPrefix+strconv.Itoa(i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("とばす", "skip"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func parseOption(data string) (int, bool) {
	if !strings.HasPrefix(data, optionPrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(data, optionPrefix))
	if err != nil {
		return 0, false
	}
	return i, true
}

func formatQuestion(n, total int, text string, followup bool) string {
	if followup {
		return "↪️ " + text
	}
	return fmt.Sprintf("❓ %d/%d\n%s", n, total, text)
}

func formatVerdict(out story.ValidationOutcome) string {
	if out.Result == nil {
		return "けんしょうに しっぱいしました: " + out.Message + "\n/done で もういちど ためせます。"
	}
	r := out.Result
	var b strings.Builder
	if r.ReadyForStory {
		b.WriteString("✅ おはなしを つくる じゅんびが できました！\n")
	} else {
		b.WriteString("📝 もうすこし おしえてね。\n")
	}
	fmt.Fprintf(&b, "\nそうごう: %d\nかんせいど: %d\nねんれいてきせい: %d\nいっかんせい: %d\n",
		r.OverallScore, r.Completeness.Score, r.AgeAppropriateness.Score, r.StoryCoherence.Score)
	if len(r.Recommendations) > 0 {
		b.WriteString("\nアドバイス:\n")
		for _, rec := range r.Recommendations {
			b.WriteString("• ")
			b.WriteString(rec)
			b.WriteString("\n")
		}
	}
	if out.Status == story.StatusPartialSuccess {
		b.WriteString("\n（かんいてきな けんしょうです）")
	}
	return strings.TrimRight(b.String(), "\n")
}

const helpText = `えから おはなしを つくる おてつだいを します。

/story <画像ID>  しつもんを はじめる
/skip  いまの しつもんを とばす
/done  こたえを ほぞんして けんしょう
/cancel  やめる`
