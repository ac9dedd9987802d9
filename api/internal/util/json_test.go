package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
)

func TestExtractJSON_FencedBlockIgnoresProse(t *testing.T) {
	text := "Here you go:\n```json\n{\"missing_elements\": [\"conflict\"], \"n\": 1}\n```\nHope this helps! {\"other\": true, \"longer\": \"xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx\"}"

	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"missing_elements": []any{"conflict"}, "n": float64(1)}, m)
}

func TestExtractJSON_FenceTagIsCaseInsensitive(t *testing.T) {
	m, err := ExtractJSON("```JSON\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, float64(1), m["a"])
}

func TestExtractJSON_LongestBalancedBlockWins(t *testing.T) {
	text := `first {"a": 1} then {"questions": [{"q": "who?"}], "meta": {"total": 1}} end`

	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, m, "questions")
	assert.NotContains(t, m, "a")
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	text := `prose {"value": "a } tricky { string", "q": "say \"hi\" }"} tail`

	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "a } tricky { string", m["value"])
	assert.Equal(t, `say "hi" }`, m["q"])
}

func TestExtractJSON_DeepNesting(t *testing.T) {
	text := `{"validation_result": {"completeness": {"score": 80, "missing_elements": []}}, "meta": {}}`

	m, err := ExtractJSON(text)
	require.NoError(t, err)
	vr := m["validation_result"].(map[string]any)
	assert.Equal(t, float64(80), vr["completeness"].(map[string]any)["score"])
}

func TestExtractJSON_BrokenFenceFallsThrough(t *testing.T) {
	text := "```json\n{\"a\":,}\n```\nretry: {\"b\": 2, \"c\": 3}"

	m, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Equal(t, float64(2), m["b"])
}

func TestExtractJSON_StrayBraces(t *testing.T) {
	m, err := ExtractJSON(`} {"a": {"b": 1} } and } {`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": float64(1)}, m["a"])
}

func TestExtractJSON_UnclosedBraceInProse(t *testing.T) {
	m, err := ExtractJSON(`note { see below: {"questions": [{"a": 1}]}`)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": float64(1)}}, m["questions"])

	m, err = ExtractJSON(`{"a": 1} then { unfinished thought {"b": {"c": 2}} and more`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": float64(2)}, m["b"])
}

func TestExtractJSON_Failures(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"prose":     "I cannot help with that.",
		"truncated": `{"questions": [{"target_element": "conflict", "question": "what happ`,
		"array":     `["not", "an", "object"]`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := ExtractJSON(text)
			assert.Error(t, err)
			assert.Nil(t, m)
		})
	}

	_, err := ExtractJSON("plain words only")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestExtractor_ReturnsDefault(t *testing.T) {
	x := NewExtractor(logger.Nop())
	def := map[string]any{"elements": map[string]any{}, "missing_elements": []any{}}

	got := x.Extract("analyze", "the model rambled "+strings.Repeat("x", 2000), def)
	assert.Equal(t, def, got)

	got = x.Extract("analyze", `{"elements": {}, "missing_elements": ["conflict"]}`, def)
	assert.Equal(t, []any{"conflict"}, got["missing_elements"])
}

func TestExtractor_TryReportsParseKind(t *testing.T) {
	x := NewExtractor(nil)
	_, err := x.Try("questions", "nope")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindParse))
}

func TestHeadTail(t *testing.T) {
	s := "あいうえおかきくけこ"
	assert.Equal(t, "あいう", Head(s, 3))
	assert.Equal(t, "くけこ", Tail(s, 3))
	assert.Equal(t, s, Head(s, 50))
	assert.Equal(t, s, Tail(s, 50))
	assert.Equal(t, "あい…", Truncate(s, 2))
}
