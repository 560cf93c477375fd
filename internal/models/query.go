package models

import "fmt"

// Default search parameters, applied by Validate when unset.
const (
	DefaultTopK             = 5
	MaxTopK                 = 100
	DefaultThreshold        = 0.3
	DefaultSimilarThreshold = 0.85
)

// SearchQuery is a semantic search request.
//
// Filters is a mapping over recognized keys: "url" (regex the record URL must
// match), "content_type" ("technical" or "marketing"), "recency" ("recent" =
// 30 days, "6months" = 180 days). Unrecognized keys are ignored.
type SearchQuery struct {
	Query     string            `json:"query"`
	TopK      int               `json:"top_k,omitempty"`
	Threshold *float64          `json:"threshold,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Validate ensures the query has valid fields and applies defaults:
// top_k defaults to 5 and is capped at 100, threshold defaults to 0.3 when
// unset. An explicit threshold of 0 is honored (inner products can be
// negative), which is why Threshold is a pointer.
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	if q.Threshold == nil {
		v := DefaultThreshold
		q.Threshold = &v
	}
	return nil
}

// SimilarQuery finds content similar to a reference text. Compared to
// SearchQuery it uses a stricter default threshold (near-duplicate detection)
// and supports only a single URL filter.
type SimilarQuery struct {
	Reference string   `json:"reference"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	URLFilter string   `json:"url_filter,omitempty"`
}

// Validate ensures the reference is set and applies the stricter defaults.
func (q *SimilarQuery) Validate() error {
	if q.Reference == "" {
		return fmt.Errorf("reference cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	if q.Threshold == nil {
		v := DefaultSimilarThreshold
		q.Threshold = &v
	}
	return nil
}
