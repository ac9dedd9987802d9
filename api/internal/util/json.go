package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
)

// ErrNoJSON means the text holds nothing that looks like a JSON object.
var ErrNoJSON = errors.New("no JSON object in text")

// excerptRunes is how much of a failed response is logged from each end.
const excerptRunes = 500

// ExtractJSON pulls a JSON object out of free-form model text. Strategies run in order and the
// first one that decodes wins:
//  1. the body of the first ```json fence;
//  2. the longest balanced {...} block;
//  3. everything between the first '{' and the last '}'.
func ExtractJSON(text string) (map[string]any, error) {
	var errs []error

	if body, ok := fencedJSON(text); ok {
		m, err := decodeObject(body)
		if err == nil {
			return m, nil
		}
		errs = append(errs, fmt.Errorf("fenced block: %w", err))
	}

	if blocks := balancedObjects(text); len(blocks) > 0 {
		m, err := decodeObject(longest(blocks))
		if err == nil {
			return m, nil
		}
		errs = append(errs, fmt.Errorf("balanced block: %w", err))
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		m, err := decodeObject(text[start : end+1])
		if err == nil {
			return m, nil
		}
		errs = append(errs, fmt.Errorf("outer span: %w", err))
	}

	if len(errs) == 0 {
		return nil, ErrNoJSON
	}
	return nil, errors.Join(errs...)
}

// fencedJSON returns the text strictly between the first ```json fence and the next ``` after it.
func fencedJSON(text string) (string, bool) {
	const fence = "```"
	from := 0
	for {
		i := strings.Index(text[from:], fence)
		if i < 0 {
			return "", false
		}
		open := from + i
		tag := open + len(fence)
		if tag+4 <= len(text) && strings.EqualFold(text[tag:tag+4], "json") {
			rest := text[tag+4:]
			closeAt := strings.Index(rest, fence)
			if closeAt < 0 {
				return "", false
			}
			return strings.TrimSpace(rest[:closeAt]), true
		}
		from = tag
	}
}

// balancedObjects finds every top-level {...} block with matched braces. Braces inside JSON
// strings are ignored. A '{' that never closes is treated as prose and the scan resumes right
// after it, so objects following a stray brace are still found.
func balancedObjects(text string) []string {
	var (
		out      []string
		depth    int
		start    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if depth > 0 && inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, text[start:i+1])
			}
		}
	}
	if depth > 0 {
		out = append(out, balancedObjects(text[start+1:])...)
	}
	return out
}

// longest picks the block with the most characters; the earliest wins a tie.
func longest(blocks []string) string {
	best := blocks[0]
	bestLen := utf8.RuneCountInString(best)
	for _, b := range blocks[1:] {
		if n := utf8.RuneCountInString(b); n > bestLen {
			best, bestLen = b, n
		}
	}
	return best
}

func decodeObject(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, errors.New("not an object")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after object")
	}
	if m == nil {
		return nil, errors.New("null object")
	}
	return m, nil
}

// Extractor wraps ExtractJSON with logging of unparseable responses.
type Extractor struct {
	log *logger.Logger
}

func NewExtractor(log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log}
}

// Try extracts a JSON object or returns a parse-kind error. The failure is logged with the
// head and tail of the response so formatting drift can be diagnosed.
func (x *Extractor) Try(op, text string) (map[string]any, error) {
	m, err := ExtractJSON(text)
	if err == nil {
		return m, nil
	}
	x.log.Warn("model response is not parseable JSON",
		"op", op,
		"error", err,
		"length", utf8.RuneCountInString(text),
		"head", Head(text, excerptRunes),
		"tail", Tail(text, excerptRunes),
	)
	return nil, apperr.Wrap(apperr.KindParse, op, "model response is not a JSON object", err)
}

// Extract never fails: when nothing decodes it returns def.
func (x *Extractor) Extract(op, text string, def map[string]any) map[string]any {
	m, err := x.Try(op, text)
	if err != nil {
		return def
	}
	return m
}
