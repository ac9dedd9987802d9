package handle

import (
	"context"
	"net/http"
	"time"

	"story-bot/api/internal/vision"
)

type featuresResponse struct {
	ID       int64           `json:"id"`
	Features vision.Analysis `json:"features"`
}

func (d *Handle) Features(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		d.writeError(w, r, err, "")
		return
	}
	a, err := d.vision.Get(r.Context(), id)
	if err != nil {
		d.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, featuresResponse{ID: id, Features: a})
}

func (d *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if d.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
