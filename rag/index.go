package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/llm/embedding"
	"github.com/BaSui01/roundtable/types"
)

// Entry is one indexed message: its position in the thread plus its embedding.
type Entry struct {
	Position  int
	Message   types.Message
	Embedding []float64
}

// Result is a retrieved message with its cosine similarity to the query.
type Result struct {
	Position int           `json:"position"`
	Message  types.Message `json:"message"`
	Score    float64       `json:"score"`
}

// Index is a semantic index over the messages of a single thread. It holds no
// state that cannot be recomputed from the thread.
type Index struct {
	mu       sync.RWMutex
	embedder embedding.Provider
	logger   *zap.Logger

	threadID string
	seen     int // thread messages consumed, indexed or skipped
	last     types.Message
	entries  []Entry
}

// NewIndex creates an empty index. A nil embedder selects the hashing embedder.
func NewIndex(embedder embedding.Provider, logger *zap.Logger) *Index {
	if embedder == nil {
		embedder = embedding.NewHashingProvider(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder: embedder,
		logger:   logger.With(zap.String("component", "rag_index")),
	}
}

// Indexable reports whether msg takes part in retrieval. Dividers, partial
// output and blank bodies are skipped.
func Indexable(msg types.Message) bool {
	return !msg.IsDivider && !msg.IsPartial && strings.TrimSpace(msg.Body) != ""
}

// Sync brings the index up to date with thread. New trailing messages are
// embedded incrementally; a different thread or a rewritten history triggers
// a full rebuild.
func (x *Index) Sync(ctx context.Context, thread *types.Thread) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if thread.ID != x.threadID || thread.Len() < x.seen ||
		(x.seen > 0 && !thread.Messages[x.seen-1].SameContent(x.last)) {
		x.resetLocked(thread.ID)
	}
	return x.indexLocked(ctx, thread.Messages[x.seen:], x.seen)
}

// Rebuild discards the index and re-embeds every message of thread.
func (x *Index) Rebuild(ctx context.Context, thread *types.Thread) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resetLocked(thread.ID)
	return x.indexLocked(ctx, thread.Messages, 0)
}

// Add indexes a single message at the next thread position.
func (x *Index) Add(ctx context.Context, msg types.Message) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.indexLocked(ctx, []types.Message{msg}, x.seen)
}

// Reset empties the index and detaches it from any thread.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.resetLocked("")
}

// Len returns the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// ThreadID returns the thread the index currently reflects.
func (x *Index) ThreadID() string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.threadID
}

func (x *Index) resetLocked(threadID string) {
	x.threadID = threadID
	x.seen = 0
	x.last = types.Message{}
	x.entries = nil
}

func (x *Index) indexLocked(ctx context.Context, msgs []types.Message, offset int) error {
	if len(msgs) == 0 {
		return nil
	}

	var (
		texts     []string
		positions []int
	)
	for i, m := range msgs {
		if Indexable(m) {
			texts = append(texts, m.Body)
			positions = append(positions, offset+i)
		}
	}

	if len(texts) > 0 {
		vecs, err := x.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %d messages: %w", len(texts), err)
		}
		for i, vec := range vecs {
			x.entries = append(x.entries, Entry{
				Position:  positions[i],
				Message:   msgs[positions[i]-offset],
				Embedding: vec,
			})
		}
	}

	x.seen = offset + len(msgs)
	x.last = msgs[len(msgs)-1]
	x.logger.Debug("messages indexed",
		zap.String("thread_id", x.threadID),
		zap.Int("embedded", len(texts)),
		zap.Int("total", len(x.entries)))
	return nil
}

// Query returns the k indexed messages most similar to text, most similar
// first. Ties go to the more recent message.
func (x *Index) Query(ctx context.Context, text string, k int) ([]Result, error) {
	return x.QueryBefore(ctx, text, k, math.MaxInt)
}

// QueryBefore is Query restricted to messages at thread positions < before.
// An empty or under-populated index yields an empty result.
func (x *Index) QueryBefore(ctx context.Context, text string, k, before int) ([]Result, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || before <= 0 {
		return []Result{}, nil
	}
	candidates := make([]Entry, 0, len(x.entries))
	for _, e := range x.entries {
		if e.Position < before {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	query, err := x.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results := make([]Result, len(candidates))
	for i, e := range candidates {
		results[i] = Result{
			Position: e.Position,
			Message:  e.Message,
			Score:    cosineSimilarity(query, e.Embedding),
		}
	}
	sortByScore(results)

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// cosineSimilarity returns 0 for mismatched lengths or zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortByScore 按分数降序排序，分数相同时位置靠后（更新）的优先
func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position > results[j].Position
	})
}
