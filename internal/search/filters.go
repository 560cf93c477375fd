package search

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hyperjump/semdex/internal/models"
)

// Content-type filter keyword sets. A row passes when its content contains at
// least one keyword of the requested set (case-insensitive).
var (
	technicalTerms = []string{"api", "code", "technical", "developer"}
	marketingTerms = []string{"buy", "price", "sale", "offer"}
)

const (
	recentWindow    = 30 * 24 * time.Hour
	sixMonthsWindow = 180 * 24 * time.Hour
)

// buildFilter compiles the filter mapping into a single predicate.
// Recognized keys: "url" (case-insensitive regex), "content_type"
// ("technical"/"marketing"; other values pass everything), "recency"
// ("recent"/"6months"). Unrecognized keys are ignored for forward
// compatibility. An invalid url regex is a caller error.
func buildFilter(filters map[string]string) (func(*models.ChunkRecord) bool, error) {
	if len(filters) == 0 {
		return func(*models.ChunkRecord) bool { return true }, nil
	}

	var urlRe *regexp.Regexp
	if pattern, ok := filters["url"]; ok {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid url filter %q: %w", pattern, err)
		}
		urlRe = re
	}
	contentType := strings.ToLower(filters["content_type"])
	recency := strings.ToLower(filters["recency"])

	return func(rec *models.ChunkRecord) bool {
		if urlRe != nil && !urlRe.MatchString(rec.URL) {
			return false
		}
		if !matchContentType(rec.Content, contentType) {
			return false
		}
		return matchRecency(rec.CreatedAt, recency)
	}, nil
}

func matchContentType(content, contentType string) bool {
	var terms []string
	switch contentType {
	case "technical":
		terms = technicalTerms
	case "marketing":
		terms = marketingTerms
	default:
		return true
	}
	lower := strings.ToLower(content)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// matchRecency is fail-open: a record with no usable timestamp passes rather
// than being silently hidden by malformed metadata.
func matchRecency(createdAt time.Time, recency string) bool {
	var window time.Duration
	switch recency {
	case "recent":
		window = recentWindow
	case "6months":
		window = sixMonthsWindow
	default:
		return true
	}
	if createdAt.IsZero() {
		return true
	}
	return time.Since(createdAt) <= window
}
