package vision

import (
	"context"
	"encoding/json"
)

// Analysis is the stored output of the vision service for one uploaded image. The core only
// ever reads it.
type Analysis struct {
	Tags     []string `json:"tags"`
	Palette  []Color  `json:"palette"`
	Geometry Geometry `json:"geometry"`
}

type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

type Color struct {
	RGB   RGB     `json:"rgb"`
	Score float64 `json:"score"`
}

type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// SubjectCenter is normalised to [0,1] on both axes.
	SubjectCenter [2]float64 `json:"subject_center"`
}

// Store returns the analysis for an asset, or an apperr NotFound error when there is none.
type Store interface {
	Get(ctx context.Context, assetID int64) (Analysis, error)
}

// JSON renders the analysis the way it is embedded into prompts.
func (a Analysis) JSON() string {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Palette == nil {
		a.Palette = []Color{}
	}
	b, _ := json.Marshal(a)
	return string(b)
}

// StoreFunc adapts a plain function to Store.
type StoreFunc func(ctx context.Context, assetID int64) (Analysis, error)

func (f StoreFunc) Get(ctx context.Context, assetID int64) (Analysis, error) {
	return f(ctx, assetID)
}
