package story

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/vision"
)

func TestAnalyze_MissingVisionIsNotFound(t *testing.T) {
	gw := &scriptedGateway{}
	a := NewAnalyzer(visionWith(nil), gw, nil)

	_, _, err := a.Analyze(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Empty(t, gw.Calls())
}

func TestAnalyze_UsesDeterministicCallAndEmbedsVision(t *testing.T) {
	gw := &scriptedGateway{analyze: reply(`{"elements": {"character": {"value": "いぬ", "confidence": 85}}, "missing_elements": ["conflict"]}`)}
	a := NewAnalyzer(visionWith(map[int64]vision.Analysis{1: dogInPark()}), gw, nil)

	res, va, err := a.Analyze(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, dogInPark(), va)
	assert.Equal(t, ElementValue{Value: "いぬ", Confidence: 85}, res.Elements[ElementCharacter])
	assert.Equal(t, []Element{ElementConflict}, res.MissingElements)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Creative)
	assert.Contains(t, calls[0].Prompt, `"tags":["dog","park"]`)
}

func TestAnalyze_DropsUnknownElements(t *testing.T) {
	gw := &scriptedGateway{analyze: reply("```json\n" + `{
		"elements": {"Setting": {"value": "こうえん", "confidence": "70"}, "weather": {"value": "はれ", "confidence": 90}},
		"missing_elements": ["Conflict", "plot twist", "resolution", "conflict"]
	}` + "\n```")}
	a := NewAnalyzer(visionWith(map[int64]vision.Analysis{1: dogInPark()}), gw, nil)

	res, _, err := a.Analyze(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, map[Element]ElementValue{ElementSetting: {Value: "こうえん", Confidence: 70}}, res.Elements)
	assert.Equal(t, []Element{ElementConflict, ElementResolution}, res.MissingElements)
}

func TestAnalyze_UnparseableFallsBackToEmpty(t *testing.T) {
	gw := &scriptedGateway{analyze: reply("すみません、よくわかりません。")}
	a := NewAnalyzer(visionWith(map[int64]vision.Analysis{1: dogInPark()}), gw, nil)

	res, _, err := a.Analyze(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, res.Elements)
	assert.NotNil(t, res.Elements)
	assert.Equal(t, []Element{}, res.MissingElements)
}

func TestAnalyze_GatewayFailure(t *testing.T) {
	gw := &scriptedGateway{analyze: failing()}
	a := NewAnalyzer(visionWith(map[int64]vision.Analysis{1: dogInPark()}), gw, nil)

	_, _, err := a.Analyze(context.Background(), 1)
	assert.True(t, apperr.IsKind(err, apperr.KindGeneration))
}

func TestNormalizeElements(t *testing.T) {
	got := NormalizeElements([]string{" Character ", "CHARACTER", "", "主人公", "emotion"})
	assert.Equal(t, []Element{ElementCharacter, ElementEmotion}, got)
}
