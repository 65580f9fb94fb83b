package domain

import "context"

// Reranker scores (query, document) pairs with a cross-encoder.
// Scores are returned in document order; higher is more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// MaxRerankDocBytes is how much of a document the cross-encoder sees.
const MaxRerankDocBytes = 512

// TruncateForRerank cuts s to MaxRerankDocBytes without splitting a rune.
func TruncateForRerank(s string) string {
	if len(s) <= MaxRerankDocBytes {
		return s
	}
	cut := MaxRerankDocBytes
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
