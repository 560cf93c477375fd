package models

// SearchResult is a single search hit: one chunk with its similarity score.
type SearchResult struct {
	Content  string                 `json:"content"`
	URL      string                 `json:"url"`
	Title    string                 `json:"title"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	ChunkID  string                 `json:"chunk_id"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
