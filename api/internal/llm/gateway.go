package llm

import (
	"context"
	"strings"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
)

const (
	DefaultDeterministicTemperature float32 = 0.7
	DefaultCreativeTemperature      float32 = 0.9
	DefaultMaxTokens                        = 2048
)

type Options struct {
	DeterministicTemperature float32
	CreativeTemperature      float32
	MaxTokens                int
	// Timeout bounds a single call; zero leaves the caller's context alone.
	Timeout time.Duration
}

// Gateway issues the two kinds of model calls the pipeline needs. It keeps no state between
// calls and never retries or caches.
type Gateway struct {
	c    Completer
	opts Options
	log  *logger.Logger
}

func NewGateway(c Completer, opts Options, log *logger.Logger) *Gateway {
	if opts.DeterministicTemperature <= 0 {
		opts.DeterministicTemperature = DefaultDeterministicTemperature
	}
	if opts.CreativeTemperature <= 0 {
		opts.CreativeTemperature = DefaultCreativeTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gateway{c: c, opts: opts, log: log}
}

// CompleteDeterministic is used for analytical extraction.
func (g *Gateway) CompleteDeterministic(ctx context.Context, prompt, system string) (string, error) {
	return g.complete(ctx, "complete_deterministic", prompt, system, g.opts.DeterministicTemperature)
}

// CompleteCreative runs hotter so repeated calls phrase things differently.
func (g *Gateway) CompleteCreative(ctx context.Context, prompt, system string) (string, error) {
	return g.complete(ctx, "complete_creative", prompt, system, g.opts.CreativeTemperature)
}

func (g *Gateway) complete(ctx context.Context, op, prompt, system string, temp float32) (string, error) {
	if g.c == nil {
		return "", apperr.New(apperr.KindGeneration, op, "no completion engine configured")
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := g.c.Complete(ctx, Request{
		Prompt:      prompt,
		System:      system,
		Temperature: temp,
		MaxTokens:   g.opts.MaxTokens,
	})
	if err != nil {
		g.log.Error("completion failed", "op", op, "engine", g.c.Name(), "model", g.c.GetModel(), "error", err)
		return "", &apperr.Error{Kind: apperr.KindGeneration, Op: op, Message: g.c.Name() + " call failed", Cause: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", apperr.New(apperr.KindGeneration, op, g.c.Name()+" returned an empty response")
	}
	g.log.Debug("completion done",
		"op", op,
		"engine", g.c.Name(),
		"temperature", temp,
		"length", len(out),
		"elapsed", time.Since(started),
	)
	return out, nil
}
