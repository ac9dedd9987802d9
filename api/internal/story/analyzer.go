package story

import (
	"context"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/util"
	"story-bot/api/internal/vision"
)

// Gateway is the part of llm.Gateway the pipeline depends on.
type Gateway interface {
	CompleteDeterministic(ctx context.Context, prompt, system string) (string, error)
	CompleteCreative(ctx context.Context, prompt, system string) (string, error)
}

// Analyzer turns a stored vision analysis into a story-element inventory.
type Analyzer struct {
	vision vision.Store
	llm    Gateway
	x      *util.Extractor
	log    *logger.Logger
}

func NewAnalyzer(vs vision.Store, gw Gateway, log *logger.Logger) *Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{vision: vs, llm: gw, x: util.NewExtractor(log), log: log}
}

// Analyze returns NotFound when the asset has no analysis and a generation error when the model
// call fails. Unparseable model output degrades to an empty inventory.
func (a *Analyzer) Analyze(ctx context.Context, assetID int64) (ElementAnalysis, vision.Analysis, error) {
	const op = "story.analyze"

	va, err := a.vision.Get(ctx, assetID)
	if err != nil {
		return ElementAnalysis{}, vision.Analysis{}, apperr.Wrap(apperr.KindPersistence, op, "load vision analysis", err)
	}

	raw, err := a.llm.CompleteDeterministic(ctx, analyzePrompt(va), analyzeSystem)
	if err != nil {
		return ElementAnalysis{}, va, err
	}

	res, err := interpret(a.x, op, raw, emptyAnalysis(), parseAnalysis)
	if err != nil {
		a.log.Warn("element analysis fell back to empty inventory", "asset_id", assetID, "error", err)
	}
	return res, va, nil
}

func emptyAnalysis() ElementAnalysis {
	return ElementAnalysis{Elements: map[Element]ElementValue{}, MissingElements: []Element{}}
}

func parseAnalysis(m map[string]any) (ElementAnalysis, error) {
	out := emptyAnalysis()

	var elems map[string]ElementValue
	if _, err := decodeField(m, "elements", &elems); err != nil {
		return out, err
	}
	for name, v := range elems {
		if e, ok := ParseElement(name); ok {
			out.Elements[e] = v
		}
	}

	var missing []string
	if _, err := decodeField(m, "missing_elements", &missing); err != nil {
		return out, err
	}
	out.MissingElements = NormalizeElements(missing)
	return out, nil
}
