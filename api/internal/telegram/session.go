package telegram

import (
	"sync"

	"story-bot/api/internal/story"
)

// session is one parent walking through one question batch.
type session struct {
	mu sync.Mutex

	ImageID   int64
	Questions []story.Question
	Answers   []story.Answer

	// Next is the index of the question being asked; Followup counts the follow-ups of that
	// question already asked, 0 meaning the main question itself.
	Next     int
	Followup int

	// finishing is set while one update is saving and validating the batch.
	finishing bool
}

func newSession(imageID int64, qs []story.Question) *session {
	return &session{ImageID: imageID, Questions: qs}
}

func (s *session) Done() bool { return s.Next >= len(s.Questions) }

func (s *session) Current() (story.Question, bool) {
	if s.Done() {
		return story.Question{}, false
	}
	return s.Questions[s.Next], true
}

// Prompt returns the text to ask now and the options to offer, if any.
func (s *session) Prompt() (text string, options []string, ok bool) {
	q, ok := s.Current()
	if !ok {
		return "", nil, false
	}
	if s.Followup == 0 {
		return q.Text, q.Options, true
	}
	return q.Followups[s.Followup-1], nil, true
}

// Record stores reply for whatever is being asked and moves on. option is non-nil when the
// reply came from a choice button.
func (s *session) Record(reply string, option *string) {
	q, ok := s.Current()
	if !ok {
		return
	}
	if s.Followup == 0 {
		s.Answers = append(s.Answers, story.Answer{
			QuestionID:     q.ID,
			AnswerText:     reply,
			SelectedOption: option,
		})
	} else {
		a := &s.Answers[len(s.Answers)-1]
		if a.FollowupAnswers == nil {
			a.FollowupAnswers = map[string]string{}
		}
		a.FollowupAnswers[q.Followups[s.Followup-1]] = reply
	}
	s.advance(q, true)
}

// Skip drops the current question, including its follow-ups.
func (s *session) Skip() {
	q, ok := s.Current()
	if !ok {
		return
	}
	s.advance(q, false)
}

func (s *session) advance(q story.Question, answered bool) {
	if answered && s.Followup < len(q.Followups) {
		s.Followup++
		return
	}
	s.Next++
	s.Followup = 0
}

// Option resolves a button index against the current question.
func (s *session) Option(i int) (string, bool) {
	if s.Followup != 0 {
		return "", false
	}
	q, ok := s.Current()
	if !ok || i < 0 || i >= len(q.Options) {
		return "", false
	}
	return q.Options[i], true
}
