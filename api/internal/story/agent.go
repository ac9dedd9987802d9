package story

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/vision"
)

type QuestionStore interface {
	// InsertQuestionBatch writes the whole batch or nothing and returns it with ids assigned.
	InsertQuestionBatch(ctx context.Context, imageID int64, questions []Question) ([]Question, error)
	QueryQuestions(ctx context.Context, imageID int64) ([]Question, error)
}

type AnswerStore interface {
	// InsertAnswerBatch writes the whole batch or nothing and returns it with ids assigned.
	InsertAnswerBatch(ctx context.Context, answers []Answer) ([]Answer, error)
	// QueryAnswers returns every answer to every question asked about imageID.
	QueryAnswers(ctx context.Context, imageID int64) ([]Answer, error)
}

type AnalyzeOutcome struct {
	ID              int64                    `json:"id"`
	Status          Status                   `json:"status"`
	VisionAnalysis  *vision.Analysis         `json:"vision_analysis,omitempty"`
	StoryElements   map[Element]ElementValue `json:"story_elements,omitempty"`
	MissingElements []Element                `json:"missing_elements,omitempty"`
	Error           string                   `json:"error,omitempty"`

	Err error `json:"-"`
}

type QuestionsOutcome struct {
	ID              int64      `json:"id"`
	Status          Status     `json:"status"`
	MissingElements []string   `json:"missing_elements"`
	Questions       []Question `json:"questions"`
}

type SubmitOutcome struct {
	Status       Status   `json:"status"`
	Message      string   `json:"message"`
	SavedAnswers []Answer `json:"saved_answers"`
}

// Agent runs the four workflow steps over shared, stateless components. One Agent serves
// every request.
type Agent struct {
	Analyzer  *Analyzer
	Questions *QuestionGenerator
	Validator *Validator

	questionStore QuestionStore
	answerStore   AnswerStore
	log           *logger.Logger
}

type AgentConfig struct {
	MaxQuestions int
	Policy       ReadinessPolicy
}

func NewAgent(vs vision.Store, gw Gateway, qs QuestionStore, as AnswerStore, cfg AgentConfig, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.Nop()
	}
	return &Agent{
		Analyzer:      NewAnalyzer(vs, gw, log),
		Questions:     NewQuestionGenerator(vs, gw, cfg.MaxQuestions, log),
		Validator:     NewValidator(vs, gw, cfg.Policy, log),
		questionStore: qs,
		answerStore:   as,
		log:           log,
	}
}

// AnalyzeImage never returns an error; failures come back as status error with Err set.
func (a *Agent) AnalyzeImage(ctx context.Context, imageID int64) AnalyzeOutcome {
	res, va, err := a.Analyzer.Analyze(ctx, imageID)
	if err != nil {
		a.log.Error("image analysis failed", "image_id", imageID, "error", err)
		return AnalyzeOutcome{ID: imageID, Status: StatusError, Error: err.Error(), Err: err}
	}
	return AnalyzeOutcome{
		ID:              imageID,
		Status:          StatusSuccess,
		VisionAnalysis:  &va,
		StoryElements:   res.Elements,
		MissingElements: res.MissingElements,
	}
}

// GenerateQuestions always has a batch to store; only a failed write is an error.
func (a *Agent) GenerateQuestions(ctx context.Context, imageID int64, missing []string) (QuestionsOutcome, error) {
	qs := a.Questions.Generate(ctx, imageID, missing)

	saved, err := a.questionStore.InsertQuestionBatch(ctx, imageID, qs)
	if err != nil {
		return QuestionsOutcome{}, apperr.Wrap(apperr.KindPersistence, "story.save_questions", "save question batch", err)
	}
	a.log.Info("questions saved", "image_id", imageID, "count", len(saved))

	if missing == nil {
		missing = []string{}
	}
	return QuestionsOutcome{ID: imageID, Status: StatusSuccess, MissingElements: missing, Questions: saved}, nil
}

func (a *Agent) SubmitAnswers(ctx context.Context, answers []Answer) (SubmitOutcome, error) {
	const op = "story.submit_answers"
	for i, ans := range answers {
		if ans.QuestionID <= 0 {
			return SubmitOutcome{}, apperr.New(apperr.KindInvalid, op, fmt.Sprintf("answers[%d]: question_id is required", i))
		}
		if !ans.Answered() {
			return SubmitOutcome{}, apperr.New(apperr.KindInvalid, op, fmt.Sprintf("answers[%d]: answer_text or selected_option is required", i))
		}
	}

	saved := []Answer{}
	if len(answers) > 0 {
		var err error
		saved, err = a.answerStore.InsertAnswerBatch(ctx, answers)
		if err != nil {
			return SubmitOutcome{}, apperr.Wrap(apperr.KindPersistence, op, "save answer batch", err)
		}
	}
	a.log.Info("answers saved", "count", len(saved))
	return SubmitOutcome{
		Status:       StatusSuccess,
		Message:      fmt.Sprintf("%d件の回答を保存しました", len(saved)),
		SavedAnswers: saved,
	}, nil
}

// ValidateCollected validates everything stored for imageID. Having no questions at all is
// NotFound; load failures are returned as errors, everything else as the outcome status.
func (a *Agent) ValidateCollected(ctx context.Context, imageID int64) (ValidationOutcome, error) {
	const op = "story.validate_collected"

	var (
		questions []Question
		answers   []Answer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		questions, err = a.questionStore.QueryQuestions(gctx, imageID)
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = a.answerStore.QueryAnswers(gctx, imageID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ValidationOutcome{}, apperr.Wrap(apperr.KindPersistence, op, "load questions and answers", err)
	}
	if len(questions) == 0 {
		return ValidationOutcome{}, apperr.NotFound(op, "no questions for image %d", imageID)
	}

	return a.Validator.Validate(ctx, imageID, questions, answers), nil
}
