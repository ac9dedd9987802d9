package story

import (
	"context"
	"errors"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/util"
	"story-bot/api/internal/vision"
)

// ReadinessPolicy gates ready_for_story on the model's own scores. It can only lower the
// model's verdict, never raise it.
type ReadinessPolicy struct {
	MinCompleteness int
	MinCoherence    int
}

var DefaultReadinessPolicy = ReadinessPolicy{MinCompleteness: 50, MinCoherence: 50}

// ValidationOutcome wraps a verdict with its status. Result is nil when Status is error.
type ValidationOutcome struct {
	Status  Status            `json:"status"`
	ImageID int64             `json:"image_id"`
	Result  *ValidationResult `json:"validation_result"`
	Meta    ValidationMeta    `json:"meta"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`

	Err error `json:"-"`
}

// DefaultValidationResult is the conservative verdict used when the model's answer cannot be
// read. It lets the session continue.
func DefaultValidationResult() ValidationResult {
	return ValidationResult{
		OverallScore: 70,
		Completeness: CompletenessCheck{
			Score:              70,
			MissingElements:    []string{"詳細な検証が必要"},
			SufficientElements: []string{"基本情報は収集済み"},
		},
		AgeAppropriateness: AgeCheck{
			Score:     80,
			Issues:    []string{},
			Strengths: []string{"回答が収集されている"},
		},
		StoryCoherence: CoherenceCheck{
			Score:       70,
			Issues:      []string{"詳細な検証が必要"},
			Suggestions: []string{"情報の再確認を推奨"},
		},
		Recommendations: []string{
			"回答の詳細を確認してください",
			"不足している情報があれば追加してください",
		},
		ReadyForStory: true,
	}
}

type Validator struct {
	vision vision.Store
	llm    Gateway
	x      *util.Extractor
	log    *logger.Logger
	policy ReadinessPolicy
	now    func() time.Time
}

func NewValidator(vs vision.Store, gw Gateway, policy ReadinessPolicy, log *logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{vision: vs, llm: gw, x: util.NewExtractor(log), log: log, policy: policy, now: time.Now}
}

func (v *Validator) Validate(ctx context.Context, imageID int64, questions []Question, answers []Answer) ValidationOutcome {
	const op = "story.validate"
	log := v.log.With("image_id", imageID)
	if questions == nil {
		questions = []Question{}
	}
	if answers == nil {
		answers = []Answer{}
	}
	meta := ValidationMeta{
		TotalQuestions:      len(questions),
		AnsweredQuestions:   answeredCount(answers),
		ValidationTimestamp: v.now().UTC().Format(time.RFC3339),
	}
	fail := func(msg string, err error) ValidationOutcome {
		return ValidationOutcome{Status: StatusError, ImageID: imageID, Meta: meta, Message: msg, Error: err.Error(), Err: err}
	}

	log.Info("validation started", "questions", meta.TotalQuestions, "answers", len(answers))

	va, err := v.vision.Get(ctx, imageID)
	if err != nil {
		log.Warn("validation without vision analysis", "error", err)
		return fail("画像解析結果が見つかりません", apperr.Wrap(apperr.KindPersistence, op, "load vision analysis", err))
	}

	raw, err := v.llm.CompleteCreative(ctx, validatePrompt(va, questions, answers), validateSystem)
	if err != nil {
		log.Error("validation call failed", "error", err)
		return fail("情報検証中にエラーが発生しました", err)
	}

	res, err := interpret(v.x, op, raw, DefaultValidationResult(), parseValidation)
	if err != nil {
		log.Warn("validation verdict not interpretable, using default", "error", err)
		return ValidationOutcome{
			Status:  StatusPartialSuccess,
			ImageID: imageID,
			Result:  &res,
			Meta:    meta,
			Message: "情報検証が完了しました（簡易版）",
		}
	}

	v.applyPolicy(&res, meta)
	return ValidationOutcome{
		Status:  StatusSuccess,
		ImageID: imageID,
		Result:  &res,
		Meta:    meta,
		Message: "情報検証が完了しました",
	}
}

func (v *Validator) applyPolicy(r *ValidationResult, meta ValidationMeta) {
	switch {
	case meta.AnsweredQuestions == 0:
		r.ReadyForStory = false
	case int(r.Completeness.Score) < v.policy.MinCompleteness:
		r.ReadyForStory = false
	case int(r.StoryCoherence.Score) < v.policy.MinCoherence:
		r.ReadyForStory = false
	}
}

// answeredCount is the number of distinct questions with a non-blank answer or a picked option.
func answeredCount(answers []Answer) int {
	seen := make(map[int64]bool, len(answers))
	for _, a := range answers {
		if !a.Answered() {
			continue
		}
		seen[a.QuestionID] = true
	}
	return len(seen)
}

func parseValidation(m map[string]any) (ValidationResult, error) {
	var r ValidationResult
	found, err := decodeField(m, "validation_result", &r)
	if err != nil {
		return r, err
	}
	if !found {
		return r, errors.New("validation_result is missing")
	}
	r.Completeness.MissingElements = nonNil(r.Completeness.MissingElements)
	r.Completeness.SufficientElements = nonNil(r.Completeness.SufficientElements)
	r.AgeAppropriateness.Issues = nonNil(r.AgeAppropriateness.Issues)
	r.AgeAppropriateness.Strengths = nonNil(r.AgeAppropriateness.Strengths)
	r.StoryCoherence.Issues = nonNil(r.StoryCoherence.Issues)
	r.StoryCoherence.Suggestions = nonNil(r.StoryCoherence.Suggestions)
	r.Recommendations = nonNil(r.Recommendations)
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
