package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`\w+`)

// HashingProvider is an offline embedder: lower-cased word tokens are hashed
// into a fixed number of buckets and the term-frequency vector is
// L2-normalised. Identical texts always produce identical vectors.
type HashingProvider struct {
	dimensions int
}

// NewHashingProvider creates a hashing embedder. dims <= 0 selects 256.
func NewHashingProvider(dims int) *HashingProvider {
	if dims <= 0 {
		dims = 256
	}
	return &HashingProvider{dimensions: dims}
}

func (p *HashingProvider) Name() string    { return "hashing" }
func (p *HashingProvider) Dimensions() int { return p.dimensions }

// Embed implements Provider.
func (p *HashingProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([]EmbeddingData, len(req.Input))
	tokens := 0
	for i, text := range req.Input {
		vec, n := p.vector(text)
		embeddings[i] = EmbeddingData{Index: i, Embedding: vec}
		tokens += n
	}
	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      "hashing-tf",
		Embeddings: embeddings,
		Usage:      EmbeddingUsage{PromptTokens: tokens, TotalTokens: tokens},
	}, nil
}

// EmbedQuery embeds a single query.
func (p *HashingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return embedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *HashingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return embedDocuments(ctx, documents, p.Embed)
}

func (p *HashingProvider) vector(text string) ([]float64, int) {
	vec := make([]float64, p.dimensions)
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(p.dimensions)]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, len(words)
}
