// Package chunker splits page text into indexable chunks.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned for malformed chunker configuration
// (non-positive chunk size, negative overlap, unknown method).
var ErrInvalidConfig = errors.New("invalid chunker config")

// Method selects the chunking strategy. The set is closed: strategies are
// chosen at construction time, not looked up by name per call.
type Method int

const (
	// MethodFixed produces character windows of the configured size with
	// back-stepping overlap between consecutive windows.
	MethodFixed Method = iota
	// MethodSemantic splits on sentence boundaries and packs sentences into
	// chunks up to the configured size.
	MethodSemantic
	// MethodHybrid applies fixed windowing first, then semantic splitting
	// within each window.
	MethodHybrid
)

// String returns the method name as used in config and stats.
func (m Method) String() string {
	switch m {
	case MethodFixed:
		return "fixed"
	case MethodSemantic:
		return "semantic"
	case MethodHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseMethod converts a config string into a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "fixed":
		return MethodFixed, nil
	case "semantic", "":
		return MethodSemantic, nil
	case "hybrid":
		return MethodHybrid, nil
	default:
		return 0, fmt.Errorf("unknown chunk method %q: %w", s, ErrInvalidConfig)
	}
}

// MinChunkLen is the minimum chunk length in characters. Shorter chunks are
// dropped (fixed) or merged into the previous chunk (semantic) so that
// noise-sized fragments are never indexed.
const MinChunkLen = 100

// Chunker splits text into chunks under a fixed strategy. Chunking is
// deterministic and has no side effects.
type Chunker struct {
	method  Method
	size    int
	overlap int
}

// New creates a chunker. size is the maximum chunk length in characters,
// overlap the back-step between consecutive fixed windows.
func New(method Method, size, overlap int) (*Chunker, error) {
	if method != MethodFixed && method != MethodSemantic && method != MethodHybrid {
		return nil, fmt.Errorf("unknown chunk method %d: %w", method, ErrInvalidConfig)
	}
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d: %w", size, ErrInvalidConfig)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must not be negative, got %d: %w", overlap, ErrInvalidConfig)
	}
	return &Chunker{method: method, size: size, overlap: overlap}, nil
}

// Method returns the configured strategy.
func (c *Chunker) Method() Method {
	return c.method
}

// Size returns the configured maximum chunk length.
func (c *Chunker) Size() int {
	return c.size
}

// Chunk splits text into an ordered sequence of chunks. Empty text, or text
// shorter than MinChunkLen, produces no chunks.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	switch c.method {
	case MethodFixed:
		return c.fixedChunk(text)
	case MethodSemantic:
		return c.semanticChunk(text)
	default:
		return c.hybridChunk(text)
	}
}

// fixedChunk produces windows of size characters, stepping back overlap
// characters between windows. Windows shorter than MinChunkLen are dropped.
// Iteration stops as soon as the start position would not advance, so an
// overlap >= size cannot loop forever.
func (c *Chunker) fixedChunk(text string) []string {
	var chunks []string
	n := len(text)
	for start := 0; start < n; {
		end := start + c.size
		if end > n {
			end = n
		}
		window := strings.TrimSpace(text[start:end])
		if len(window) >= MinChunkLen {
			chunks = append(chunks, window)
		}
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			break
		}
		start = next
	}
	return chunks
}

// semanticChunk accumulates sentences into chunks up to the configured size.
// Chunks shorter than MinChunkLen are merged into the previous chunk rather
// than emitted standalone; a leading fragment with no previous chunk is dropped.
func (c *Chunker) semanticChunk(text string) []string {
	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len()+len(sentence) < c.size {
			if current.Len() > 0 {
				current.WriteByte(' ')
			}
			current.WriteString(sentence)
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		current.WriteString(sentence)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		chunks = append(chunks, s)
	}

	merged := chunks[:0]
	for _, chunk := range chunks {
		if len(chunk) < MinChunkLen {
			if len(merged) > 0 {
				merged[len(merged)-1] += " " + chunk
			}
			continue
		}
		merged = append(merged, chunk)
	}
	return merged
}

// hybridChunk applies fixed windowing, then semantic splitting within each window.
func (c *Chunker) hybridChunk(text string) []string {
	var chunks []string
	for _, window := range c.fixedChunk(text) {
		chunks = append(chunks, c.semanticChunk(window)...)
	}
	return chunks
}

// splitSentences splits text at terminal punctuation followed by whitespace.
// The trailing text after the last boundary is returned as a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if !isTerminal(text[i]) || !isSpace(text[i+1]) {
			continue
		}
		sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
		j := i + 1
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func isTerminal(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
