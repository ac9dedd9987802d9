package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/vision"
)

// VisionRepo reads the analysis the vision service stored next to each upload.
type VisionRepo struct{ DB *sql.DB }

func NewVisionRepo(db *sql.DB) *VisionRepo { return &VisionRepo{DB: db} }

// Get returns NotFound both for an unknown asset and for an asset that was never analysed.
func (r *VisionRepo) Get(ctx context.Context, assetID int64) (vision.Analysis, error) {
	const op = "store.vision.get"
	const q = `select meta_json from upload_images where id = $1`

	var meta sql.NullString
	if err := r.DB.QueryRowContext(ctx, q, assetID).Scan(&meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vision.Analysis{}, apperr.NotFound(op, "asset %d not found", assetID)
		}
		return vision.Analysis{}, apperr.Wrap(apperr.KindPersistence, op, "query upload_images", err)
	}
	if !meta.Valid || strings.TrimSpace(meta.String) == "" {
		return vision.Analysis{}, apperr.NotFound(op, "asset %d has no vision analysis", assetID)
	}

	var a vision.Analysis
	if err := json.Unmarshal([]byte(meta.String), &a); err != nil {
		return vision.Analysis{}, apperr.Wrap(apperr.KindPersistence, op, "decode meta_json", err)
	}
	return a, nil
}
