package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Element is one of the six narrative facets a story needs.
type Element string

const (
	ElementCharacter  Element = "character"
	ElementSetting    Element = "setting"
	ElementEmotion    Element = "emotion"
	ElementAction     Element = "action"
	ElementConflict   Element = "conflict"
	ElementResolution Element = "resolution"
)

// Elements is the canonical order.
var Elements = []Element{
	ElementCharacter,
	ElementSetting,
	ElementEmotion,
	ElementAction,
	ElementConflict,
	ElementResolution,
}

// ParseElement matches s against the canonical names, ignoring case and surrounding space.
func ParseElement(s string) (Element, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, e := range Elements {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// NormalizeElements keeps canonical names only, in input order, without duplicates.
func NormalizeElements(in []string) []Element {
	out := make([]Element, 0, len(in))
	seen := make(map[Element]bool, len(in))
	for _, s := range in {
		e, ok := ParseElement(s)
		if !ok || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

type ElementValue struct {
	Value string `json:"value"`
	// Confidence is advisory, 0..100 as reported by the model.
	Confidence Score `json:"confidence"`
}

type ElementAnalysis struct {
	Elements        map[Element]ElementValue `json:"elements"`
	MissingElements []Element                `json:"missing_elements"`
}

type QuestionType string

const (
	QuestionOpen   QuestionType = "open"
	QuestionChoice QuestionType = "choice"
)

type Question struct {
	ID            int64        `json:"id,omitempty"`
	ImageID       int64        `json:"image_id,omitempty"`
	TargetElement string       `json:"target_element"`
	Reason        string       `json:"reason,omitempty"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options,omitempty"`
	Followups     []string     `json:"followups"`
	CreatedAt     *time.Time   `json:"created_at,omitempty"`
}

type Answer struct {
	ID              int64             `json:"id,omitempty"`
	QuestionID      int64             `json:"question_id"`
	UserID          *int64            `json:"user_id,omitempty"`
	AnswerText      string            `json:"answer_text"`
	SelectedOption  *string           `json:"selected_option,omitempty"`
	FollowupAnswers map[string]string `json:"followup_answers,omitempty"`
	CreatedAt       *time.Time        `json:"created_at,omitempty"`
}

// Answered reports whether the answer carries anything: typed text or a picked option.
func (a Answer) Answered() bool {
	if strings.TrimSpace(a.AnswerText) != "" {
		return true
	}
	return a.SelectedOption != nil && strings.TrimSpace(*a.SelectedOption) != ""
}

type CompletenessCheck struct {
	Score              Score    `json:"score"`
	MissingElements    []string `json:"missing_elements"`
	SufficientElements []string `json:"sufficient_elements"`
}

type AgeCheck struct {
	Score     Score    `json:"score"`
	Issues    []string `json:"issues"`
	Strengths []string `json:"strengths"`
}

type CoherenceCheck struct {
	Score       Score    `json:"score"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

type ValidationResult struct {
	OverallScore       Score             `json:"overall_score"`
	Completeness       CompletenessCheck `json:"completeness"`
	AgeAppropriateness AgeCheck          `json:"age_appropriateness"`
	StoryCoherence     CoherenceCheck    `json:"story_coherence"`
	Recommendations    []string          `json:"recommendations"`
	ReadyForStory      bool              `json:"ready_for_story"`
}

type ValidationMeta struct {
	TotalQuestions      int    `json:"total_questions"`
	AnsweredQuestions   int    `json:"answered_questions"`
	ValidationTimestamp string `json:"validation_timestamp"`
}

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusError          Status = "error"
)

// Score is a 0..100 integer that also accepts floats and numeric strings, since models are
// not consistent about it. Out-of-range values are clamped.
type Score int

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		b = []byte(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("score: %q is not a number", string(b))
	}
	*s = clampScore(f)
	return nil
}

func clampScore(f float64) Score {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return Score(math.Round(f))
	}
}
