package story

import (
	"context"
	"errors"
	"sync"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/vision"
)

type call struct {
	Creative bool
	Prompt   string
	System   string
}

// scriptedGateway answers by looking at which system instruction it was given.
type scriptedGateway struct {
	mu    sync.Mutex
	calls []call

	analyze   func(prompt string) (string, error)
	questions func(prompt string) (string, error)
	validate  func(prompt string) (string, error)
}

func (g *scriptedGateway) CompleteDeterministic(ctx context.Context, prompt, system string) (string, error) {
	return g.route(false, prompt, system)
}

func (g *scriptedGateway) CompleteCreative(ctx context.Context, prompt, system string) (string, error) {
	return g.route(true, prompt, system)
}

func (g *scriptedGateway) route(creative bool, prompt, system string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, call{Creative: creative, Prompt: prompt, System: system})
	g.mu.Unlock()

	var fn func(string) (string, error)
	switch system {
	case analyzeSystem:
		fn = g.analyze
	case validateSystem:
		fn = g.validate
	default:
		fn = g.questions
	}
	if fn == nil {
		return "", errors.New("unexpected call")
	}
	return fn(prompt)
}

func (g *scriptedGateway) Calls() []call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]call(nil), g.calls...)
}

func reply(s string) func(string) (string, error) {
	return func(string) (string, error) { return s, nil }
}

var errUpstream = &apperr.Error{Kind: apperr.KindGeneration, Op: "complete_creative", Message: "gemini call failed", Cause: errors.New("quota exceeded")}

func failing() func(string) (string, error) {
	return func(string) (string, error) { return "", errUpstream }
}

func dogInPark() vision.Analysis {
	return vision.Analysis{
		Tags:     []string{"dog", "park"},
		Palette:  []vision.Color{{RGB: vision.RGB{R: 110, G: 190, B: 90}, Score: 0.5}},
		Geometry: vision.Geometry{Width: 800, Height: 600, SubjectCenter: [2]float64{0.4, 0.55}},
	}
}

func visionWith(known map[int64]vision.Analysis) vision.Store {
	return vision.StoreFunc(func(ctx context.Context, id int64) (vision.Analysis, error) {
		a, ok := known[id]
		if !ok {
			return vision.Analysis{}, apperr.NotFound("vision.get", "no analysis for asset %d", id)
		}
		return a, nil
	})
}

// memStore keeps questions and answers in memory with sequential ids.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	questions []Question
	answers   []Answer

	failInsert error
	failQuery  error
}

func (s *memStore) InsertQuestionBatch(ctx context.Context, imageID int64, qs []Question) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return nil, s.failInsert
	}
	now := time.Now()
	out := make([]Question, 0, len(qs))
	for _, q := range qs {
		s.nextID++
		q.ID, q.ImageID, q.CreatedAt = s.nextID, imageID, &now
		out = append(out, q)
	}
	s.questions = append(s.questions, out...)
	return out, nil
}

func (s *memStore) QueryQuestions(ctx context.Context, imageID int64) ([]Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuery != nil {
		return nil, s.failQuery
	}
	var out []Question
	for _, q := range s.questions {
		if q.ImageID == imageID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *memStore) InsertAnswerBatch(ctx context.Context, as []Answer) ([]Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert != nil {
		return nil, s.failInsert
	}
	out := make([]Answer, 0, len(as))
	for _, a := range as {
		s.nextID++
		a.ID = s.nextID
		out = append(out, a)
	}
	s.answers = append(s.answers, out...)
	return out, nil
}

func (s *memStore) QueryAnswers(ctx context.Context, imageID int64) ([]Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuery != nil {
		return nil, s.failQuery
	}
	asked := map[int64]bool{}
	for _, q := range s.questions {
		if q.ImageID == imageID {
			asked[q.ID] = true
		}
	}
	var out []Answer
	for _, a := range s.answers {
		if asked[a.QuestionID] {
			out = append(out, a)
		}
	}
	return out, nil
}
