package story

import (
	"encoding/json"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/util"
)

// interpret turns raw model text into a T. When the text holds no JSON object, or parse
// rejects it, def is returned together with a parse-kind error saying why.
func interpret[T any](x *util.Extractor, op, raw string, def T, parse func(map[string]any) (T, error)) (T, error) {
	m, err := x.Try(op, raw)
	if err != nil {
		return def, err
	}
	v, err := parse(m)
	if err != nil {
		return def, apperr.Wrap(apperr.KindParse, op, "model JSON has an unexpected shape", err)
	}
	return v, nil
}

// decodeField re-decodes m[key] into out. A missing key leaves out untouched and reports false.
func decodeField(m map[string]any, key string, out any) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return true, err
	}
	return true, json.Unmarshal(b, out)
}
