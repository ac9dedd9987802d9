package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"story-bot/api/internal/config"
	"story-bot/api/internal/handle"
	"story-bot/api/internal/llm"
	"story-bot/api/internal/llm/gemini"
	"story-bot/api/internal/llm/openai"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/store"
	"story-bot/api/internal/story"
	"story-bot/api/internal/vision"
)

// App owns every long-lived dependency of one process. Both binaries build it the same way.
type App struct {
	Cfg    *config.Config
	Log    *logger.Logger
	DB     *sql.DB
	Redis  *redis.Client
	Vision vision.Store
	Agent  *story.Agent
	Handle *handle.Handle

	gemini *gemini.Engine
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &App{Cfg: cfg, Log: log}

	a.DB, err = store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	log.Info("db connected", "db", config.SafeDSNSummary(cfg.DatabaseURL))

	a.Vision = store.NewVisionRepo(a.DB)
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// the cache is optional; reads fall through to postgres
			log.Warn("redis ping failed, vision cache may be cold", "addr", cfg.RedisAddr, "error", err)
		}
		a.Vision = vision.NewCachedStore(a.Vision, a.Redis, cfg.VisionCacheTTL, log)
	}

	a.gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	engines := &llm.Engines{
		Gemini: a.gemini,
		OpenAI: openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL),
	}
	completer, err := engines.GetEngine(cfg.LLMProvider)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("llm engine selected", "engine", completer.Name(), "model", completer.GetModel())

	gw := llm.NewGateway(completer, llm.Options{
		DeterministicTemperature: cfg.DeterministicTemperature,
		CreativeTemperature:      cfg.CreativeTemperature,
		MaxTokens:                cfg.MaxOutputTokens,
		Timeout:                  cfg.LLMTimeout,
	}, log)

	a.Agent = story.NewAgent(a.Vision, gw,
		store.NewQuestionRepo(a.DB), store.NewAnswerRepo(a.DB),
		story.AgentConfig{
			MaxQuestions: cfg.MaxQuestions,
			Policy:       story.ReadinessPolicy{MinCompleteness: cfg.MinCompleteness, MinCoherence: cfg.MinCoherence},
		},
		log,
	)
	a.Handle = handle.New(a.Agent, a.Vision, a.DB, log)
	return a, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.gemini != nil {
		_ = a.gemini.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
