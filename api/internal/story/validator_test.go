package story

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/vision"
)

func verdictJSON(completeness, coherence int, ready bool) string {
	return fmt.Sprintf(`{"validation_result": {
		"overall_score": %d,
		"completeness": {"score": %d, "missing_elements": [], "sufficient_elements": ["主人公"]},
		"age_appropriateness": {"score": 90, "issues": [], "strengths": ["短文"]},
		"story_coherence": {"score": %d, "issues": [], "suggestions": []},
		"recommendations": [],
		"ready_for_story": %t
	}, "meta": {"total_questions": 99}}`, (completeness+coherence)/2, completeness, coherence, ready)
}

func newValidator(gw Gateway) *Validator {
	v := NewValidator(visionWith(map[int64]vision.Analysis{1: dogInPark()}), gw, DefaultReadinessPolicy, nil)
	v.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	return v
}

func sixQuestions() []Question {
	var qs []Question
	for i, e := range Elements {
		qs = append(qs, Question{ID: int64(i + 1), ImageID: 1, TargetElement: string(e), Text: "しつもん", Type: QuestionOpen, Followups: []string{}})
	}
	return qs
}

func answersFor(ids ...int64) []Answer {
	var out []Answer
	for _, id := range ids {
		out = append(out, Answer{QuestionID: id, AnswerText: "こたえ"})
	}
	return out
}

func TestValidate_Success(t *testing.T) {
	gw := &scriptedGateway{validate: reply(verdictJSON(85, 80, true))}

	out := newValidator(gw).Validate(context.Background(), 1, sixQuestions(), answersFor(1, 2, 3))
	require.Equal(t, StatusSuccess, out.Status)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.ReadyForStory)
	assert.Equal(t, Score(85), out.Result.Completeness.Score)
	assert.Equal(t, ValidationMeta{TotalQuestions: 6, AnsweredQuestions: 3, ValidationTimestamp: "2025-05-01T09:00:00Z"}, out.Meta)
	assert.NoError(t, out.Err)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Creative)
	assert.Contains(t, calls[0].Prompt, `"question_id":3`)
}

func TestValidate_CompletenessFollowsCoverage(t *testing.T) {
	// The scripted model scores completeness by how many answers it was shown.
	gw := &scriptedGateway{validate: func(prompt string) (string, error) {
		n := strings.Count(prompt, `"question_id"`)
		return verdictJSON(n*100/6, 80, n == 6), nil
	}}
	v := newValidator(gw)

	all := v.Validate(context.Background(), 1, sixQuestions(), answersFor(1, 2, 3, 4, 5, 6))
	half := v.Validate(context.Background(), 1, sixQuestions(), answersFor(1, 2, 3))
	require.Equal(t, StatusSuccess, all.Status)
	require.Equal(t, StatusSuccess, half.Status)
	assert.Greater(t, all.Result.Completeness.Score, half.Result.Completeness.Score)
	assert.True(t, all.Result.ReadyForStory)
	assert.False(t, half.Result.ReadyForStory)
}

func TestValidate_GatewayErrorHasNoResult(t *testing.T) {
	out := newValidator(&scriptedGateway{validate: failing()}).Validate(context.Background(), 1, sixQuestions(), answersFor(1))
	assert.Equal(t, StatusError, out.Status)
	assert.Nil(t, out.Result)
	assert.True(t, apperr.IsKind(out.Err, apperr.KindGeneration))
	assert.NotEmpty(t, out.Error)
}

func TestValidate_MissingVision(t *testing.T) {
	gw := &scriptedGateway{validate: reply(verdictJSON(90, 90, true))}
	v := NewValidator(visionWith(nil), gw, DefaultReadinessPolicy, nil)

	out := v.Validate(context.Background(), 5, sixQuestions(), nil)
	assert.Equal(t, StatusError, out.Status)
	assert.Nil(t, out.Result)
	assert.True(t, apperr.IsKind(out.Err, apperr.KindNotFound))
	assert.Empty(t, gw.Calls())
}

func TestValidate_ParseErrorIsPartialSuccess(t *testing.T) {
	for name, body := range map[string]string{
		"prose":          "けんしょう できませんでした",
		"no result key":  `{"meta": {"total_questions": 6}}`,
		"bad score type": `{"validation_result": {"overall_score": "high"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			out := newValidator(&scriptedGateway{validate: reply(body)}).Validate(context.Background(), 1, sixQuestions(), nil)
			assert.Equal(t, StatusPartialSuccess, out.Status)
			require.NotNil(t, out.Result)
			assert.Equal(t, DefaultValidationResult(), *out.Result)
			assert.True(t, out.Result.ReadyForStory)
			assert.Equal(t, 6, out.Meta.TotalQuestions)
			assert.Equal(t, 0, out.Meta.AnsweredQuestions)
		})
	}
}

func TestValidate_ReadinessPolicy(t *testing.T) {
	cases := []struct {
		name         string
		completeness int
		coherence    int
		modelReady   bool
		answers      []Answer
		want         bool
	}{
		{"all good", 80, 80, true, answersFor(1, 2), true},
		{"no answers", 95, 95, true, nil, false},
		{"blank answers only", 95, 95, true, []Answer{{QuestionID: 1, AnswerText: "  "}}, false},
		{"low completeness", 40, 90, true, answersFor(1), false},
		{"low coherence", 90, 49, true, answersFor(1), false},
		{"threshold is inclusive", 50, 50, true, answersFor(1), true},
		{"model says no", 100, 100, false, answersFor(1, 2, 3), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &scriptedGateway{validate: reply(verdictJSON(tc.completeness, tc.coherence, tc.modelReady))}
			out := newValidator(gw).Validate(context.Background(), 1, sixQuestions(), tc.answers)
			require.Equal(t, StatusSuccess, out.Status)
			assert.Equal(t, tc.want, out.Result.ReadyForStory)
		})
	}
}

func TestScore_Lenient(t *testing.T) {
	var v struct {
		A, B, C, D, E, F Score
	}
	require.NoError(t, json.Unmarshal([]byte(`{"A": 80, "B": "75", "C": 66.6, "D": "90%", "E": 140, "F": null}`), &v))
	assert.Equal(t, Score(80), v.A)
	assert.Equal(t, Score(75), v.B)
	assert.Equal(t, Score(67), v.C)
	assert.Equal(t, Score(90), v.D)
	assert.Equal(t, Score(100), v.E)
	assert.Equal(t, Score(0), v.F)

	assert.Error(t, json.Unmarshal([]byte(`"high"`), new(Score)))
}
