package story

import (
	"context"
	"strings"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/util"
	"story-bot/api/internal/vision"
)

const DefaultMaxQuestions = 6

// Why the canonical fallback question was used.
const (
	ReasonNoVision     = "画像解析結果がありません"
	ReasonModelFailure = "エラー時のフォールバック"
	ReasonParseFailure = "JSON解析エラー"
	ReasonEmptyResult  = "フォールバック質問"
)

// FallbackQuestion is the one question that is always safe to ask about any drawing.
func FallbackQuestion(reason string) Question {
	return Question{
		TargetElement: "protagonist",
		Reason:        reason,
		Text:          "この えの しゅじんこうは だれかな？",
		Type:          QuestionOpen,
		Followups:     []string{"なまえは なに？"},
	}
}

// QuestionGenerator produces the follow-up questions for the missing elements of one drawing.
type QuestionGenerator struct {
	vision vision.Store
	llm    Gateway
	x      *util.Extractor
	log    *logger.Logger
	max    int
}

func NewQuestionGenerator(vs vision.Store, gw Gateway, maxQuestions int, log *logger.Logger) *QuestionGenerator {
	if log == nil {
		log = logger.Nop()
	}
	if maxQuestions <= 0 {
		maxQuestions = DefaultMaxQuestions
	}
	return &QuestionGenerator{vision: vs, llm: gw, x: util.NewExtractor(log), log: log, max: maxQuestions}
}

// Generate never fails and never returns an empty batch.
func (g *QuestionGenerator) Generate(ctx context.Context, assetID int64, missing []string) []Question {
	const op = "story.questions"
	log := g.log.With("asset_id", assetID)

	va, err := g.vision.Get(ctx, assetID)
	if err != nil {
		if !apperr.IsKind(err, apperr.KindNotFound) {
			log.Error("vision lookup failed", "error", err)
		}
		return []Question{FallbackQuestion(ReasonNoVision)}
	}

	missing = cleanNames(missing)
	raw, err := g.llm.CompleteCreative(ctx, questionsPrompt(va, missing, g.max), questionsSystemFor(g.max))
	if err != nil {
		log.Error("question generation call failed", "error", err)
		return []Question{FallbackQuestion(ReasonModelFailure)}
	}
	log.Debug("question generation response",
		"length", len([]rune(raw)),
		"head", util.Head(raw, 500),
		"tail", util.Tail(raw, 500),
	)

	qs, err := interpret[[]Question](g.x, op, raw, nil, parseQuestions)
	if err != nil {
		log.Warn("question batch not interpretable", "error", err)
		return []Question{FallbackQuestion(ReasonParseFailure)}
	}
	if len(qs) == 0 {
		log.Warn("model returned no usable questions")
		return []Question{FallbackQuestion(ReasonEmptyResult)}
	}
	return capBatch(qs, missing, g.max)
}

// capBatch trims qs to limit. Questions aimed at a missing element are kept before anything
// else; the survivors stay in the order the model gave them.
func capBatch(qs []Question, missing []string, limit int) []Question {
	if len(qs) <= limit {
		return qs
	}
	wanted := make(map[string]bool, len(missing))
	for _, e := range NormalizeElements(missing) {
		wanted[string(e)] = true
	}
	keep := make([]bool, len(qs))
	n := 0
	for _, pass := range []bool{true, false} {
		for i, q := range qs {
			if n == limit {
				break
			}
			if !keep[i] && wanted[q.TargetElement] == pass {
				keep[i] = true
				n++
			}
		}
	}
	out := make([]Question, 0, limit)
	for i, q := range qs {
		if keep[i] {
			out = append(out, q)
		}
	}
	return out
}

type rawQuestion struct {
	TargetElement string   `json:"target_element"`
	Reason        string   `json:"reason"`
	Question      string   `json:"question"`
	QuestionText  string   `json:"question_text"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	Followups     []string `json:"followups"`
}

func parseQuestions(m map[string]any) ([]Question, error) {
	var raws []rawQuestion
	if _, err := decodeField(m, "questions", &raws); err != nil {
		return nil, err
	}
	out := make([]Question, 0, len(raws))
	for _, r := range raws {
		if q, ok := r.normalize(); ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// normalize enforces the question invariants: non-empty text, a known target element, and
// options present exactly when the type is choice.
func (r rawQuestion) normalize() (Question, bool) {
	text := strings.TrimSpace(r.Question)
	if text == "" {
		text = strings.TrimSpace(r.QuestionText)
	}
	if text == "" {
		return Question{}, false
	}

	target, ok := ParseElement(r.TargetElement)
	if !ok {
		return Question{}, false
	}

	q := Question{
		TargetElement: string(target),
		Reason:        strings.TrimSpace(r.Reason),
		Text:          text,
		Type:          QuestionOpen,
		Followups:     cleanNames(r.Followups),
	}
	if strings.EqualFold(strings.TrimSpace(r.Type), string(QuestionChoice)) {
		if opts := cleanNames(r.Options); len(opts) > 0 {
			q.Type = QuestionChoice
			q.Options = opts
		}
	}
	return q, true
}

// cleanNames trims entries and drops blanks and exact duplicates.
func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
