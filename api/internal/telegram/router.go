package telegram

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"story-bot/api/internal/logger"
	"story-bot/api/internal/story"
)

// Workflow is what the bot needs from story.Agent.
type Workflow interface {
	AnalyzeImage(ctx context.Context, imageID int64) story.AnalyzeOutcome
	GenerateQuestions(ctx context.Context, imageID int64, missing []string) (story.QuestionsOutcome, error)
	SubmitAnswers(ctx context.Context, answers []story.Answer) (story.SubmitOutcome, error)
	ValidateCollected(ctx context.Context, imageID int64) (story.ValidationOutcome, error)
}

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Router struct {
	Bot   Sender
	Agent Workflow
	Log   *logger.Logger

	sessions sync.Map // chatID -> *session
}

const stepTimeout = 2 * time.Minute

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(*upd.Message)
		return
	}
	if txt := strings.TrimSpace(upd.Message.Text); txt != "" {
		r.onText(upd.Message.Chat.ID, txt)
	}
}

func (r *Router) HandleCommand(m tgbotapi.Message) {
	cid := m.Chat.ID
	switch m.Command() {
	case "start", "help":
		r.send(cid, helpText)
	case "story":
		id, err := strconv.ParseInt(strings.TrimSpace(m.CommandArguments()), 10, 64)
		if err != nil || id <= 0 {
			r.send(cid, "つかいかた: /story <画像ID>")
			return
		}
		r.startStory(cid, id)
	case "skip":
		s := r.session(cid)
		if s == nil {
			r.send(cid, "いまは しつもんが ありません。/story で はじめてね。")
			return
		}
		s.mu.Lock()
		s.Skip()
		s.mu.Unlock()
		r.askNext(cid, s)
	case "done":
		s := r.session(cid)
		if s == nil {
			r.send(cid, "いまは しつもんが ありません。/story で はじめてね。")
			return
		}
		r.finish(cid, s)
	case "cancel":
		r.sessions.Delete(cid)
		r.send(cid, "やめました。また あそぼうね。")
	default:
		r.send(cid, "しらない コマンドです。/help を みてね。")
	}
}

func (r *Router) startStory(cid, imageID int64) {
	log := r.log().With("chat_id", cid, "image_id", imageID)
	r.send(cid, "えを みているよ…")

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	analysis := r.Agent.AnalyzeImage(ctx, imageID)
	if analysis.Status == story.StatusError {
		log.Warn("analysis failed", "error", analysis.Err)
		r.send(cid, "えの かいせきが みつかりませんでした。しばらく してから もういちど ためしてね。")
		return
	}
	missing := make([]string, 0, len(analysis.MissingElements))
	for _, e := range analysis.MissingElements {
		missing = append(missing, string(e))
	}

	qs, err := r.Agent.GenerateQuestions(ctx, imageID, missing)
	if err != nil {
		log.Error("questions not saved", "error", err)
		r.send(cid, "しつもんを よういできませんでした。もういちど /story を ためしてね。")
		return
	}

	s := newSession(imageID, qs.Questions)
	r.sessions.Store(cid, s)
	log.Info("story session started", "questions", len(qs.Questions))
	r.askNext(cid, s)
}

func (r *Router) onText(cid int64, txt string) {
	s := r.session(cid)
	if s == nil {
		r.send(cid, helpText)
		return
	}
	s.mu.Lock()
	s.Record(txt, nil)
	s.mu.Unlock()
	r.askNext(cid, s)
}

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack
	if cb.Message == nil {
		return
	}
	cid := cb.Message.Chat.ID
	s := r.session(cid)
	if s == nil {
		return
	}

	s.mu.Lock()
	switch {
	case cb.Data == "skip":
		s.Skip()
	default:
		i, ok := parseOption(cb.Data)
		if !ok {
			s.mu.Unlock()
			return
		}
		opt, ok := s.Option(i)
		if !ok {
			// stale button from an earlier question
			s.mu.Unlock()
			return
		}
		s.Record(opt, &opt)
	}
	s.mu.Unlock()

	edit := tgbotapi.NewEditMessageReplyMarkup(cid, cb.Message.MessageID, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = r.Bot.Send(edit)
	r.askNext(cid, s)
}

func (r *Router) askNext(cid int64, s *session) {
	s.mu.Lock()
	if s.Done() {
		s.mu.Unlock()
		r.finish(cid, s)
		return
	}
	text, options, _ := s.Prompt()
	n, total, followup := s.Next+1, len(s.Questions), s.Followup > 0
	s.mu.Unlock()

	msg := tgbotapi.NewMessage(cid, formatQuestion(n, total, text, followup))
	if len(options) > 0 {
		msg.ReplyMarkup = optionsKeyboard(options)
	}
	_, _ = r.Bot.Send(msg)
}

// finish saves whatever was answered as one batch and reports the verdict. The session is
// dropped only after a verdict, so a failed save can be retried with /done. Only one finish
// runs per session at a time.
func (r *Router) finish(cid int64, s *session) {
	s.mu.Lock()
	if s.finishing {
		s.mu.Unlock()
		r.send(cid, "いま こたえを たしかめているよ。ちょっと まってね。")
		return
	}
	s.finishing = true
	answers := append([]story.Answer(nil), s.Answers...)
	imageID := s.ImageID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.finishing = false
		s.mu.Unlock()
	}()
	log := r.log().With("chat_id", cid, "image_id", imageID)

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	if len(answers) > 0 {
		if _, err := r.Agent.SubmitAnswers(ctx, answers); err != nil {
			log.Error("answers not saved", "error", err)
			r.send(cid, "こたえを ほぞんできませんでした。/done で もういちど ためしてね。")
			return
		}
		s.mu.Lock()
		s.Answers = s.Answers[len(answers):]
		s.mu.Unlock()
	}

	r.send(cid, "ありがとう！ こたえを たしかめているよ…")
	out, err := r.Agent.ValidateCollected(ctx, imageID)
	if err != nil {
		log.Error("validation failed", "error", err)
		r.send(cid, "けんしょうに しっぱいしました。/done で もういちど ためしてね。")
		return
	}
	r.send(cid, formatVerdict(out))
	if out.Status != story.StatusError {
		r.sessions.Delete(cid)
	}
}

func (r *Router) session(cid int64) *session {
	if v, ok := r.sessions.Load(cid); ok {
		return v.(*session)
	}
	return nil
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	_, _ = r.Bot.Send(msg)
}

func (r *Router) log() *logger.Logger {
	if r.Log == nil {
		return logger.Nop()
	}
	return r.Log
}
