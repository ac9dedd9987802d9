package llm

import (
	"context"
	"errors"
	"strings"
)

// Request is one completion call. Temperature and MaxTokens are already resolved by the Gateway.
type Request struct {
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int
}

// Completer is the completion-service collaborator: one prompt in, raw model text out.
type Completer interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Engines struct {
	Gemini Completer
	OpenAI Completer
}

func (e *Engines) GetEngine(llmName string) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "", "gemini":
		if e.Gemini == nil {
			return nil, errors.New("gemini engine is not configured")
		}
		return e.Gemini, nil
	case "gpt", "openai":
		if e.OpenAI == nil {
			return nil, errors.New("openai engine is not configured")
		}
		return e.OpenAI, nil
	default:
		return nil, errors.New("unknown llm_name; use 'gemini' or 'gpt'")
	}
}
