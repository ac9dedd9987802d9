package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/logger"
	"story-bot/api/internal/story"
	"story-bot/api/internal/vision"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handle struct {
	agent  *story.Agent
	vision vision.Store
	db     Pinger
	log    *logger.Logger
}

func New(agent *story.Agent, vs vision.Store, db Pinger, log *logger.Logger) *Handle {
	if log == nil {
		log = logger.Nop()
	}
	return &Handle{agent: agent, vision: vs, db: db, log: log}
}

// Register mounts every route on mux.
func (d *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", d.Healthz)
	mux.HandleFunc("GET /api/assets/{id}/features", d.Features)
	mux.HandleFunc("POST /api/story/{id}/analyze", d.Analyze)
	mux.HandleFunc("POST /api/story/{id}/questions", d.Questions)
	mux.HandleFunc("POST /api/story/answers", d.Answers)
	mux.HandleFunc("POST /api/story/{id}/validate", d.Validate)
}

// Routes returns a ready handler with request ids and access logging.
func (d *Handle) Routes() http.Handler {
	mux := http.NewServeMux()
	d.Register(mux)
	return d.withRequestID(mux)
}

type ctxKey struct{}

// RequestID returns the id assigned by the middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (d *Handle) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		d.log.Debug("request", "request_id", id, "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(started))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func (d *Handle) writeError(w http.ResponseWriter, r *http.Request, err error, detail string) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		d.log.Error("request failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
	}
	if detail == "" {
		detail = err.Error()
	}
	writeJSON(w, code, errorBody{Status: string(story.StatusError), Detail: detail})
}

func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindInvalid, "handle.path", "id must be a positive integer, got "+strconv.Quote(raw))
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindInvalid, "handle.body", "bad json", err)
	}
	return nil
}
