// Package embedding provides vector embedding generation for paper text.
package embedding

// MaxInputChars bounds the text sent to a provider. Longer input is cut.
const MaxInputChars = 8000

// Embedding represents a vector embedding of text.
type Embedding struct {
	Vector []float32 // e.g. 768 dimensions for nomic-embed-text
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}

// ZeroVector returns an all-zero vector of the given dimension. It is
// stored in place of a real embedding when generation fails.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}

// truncate cuts text to MaxInputChars runes.
func truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxInputChars {
		return text
	}
	return string(runes[:MaxInputChars])
}
