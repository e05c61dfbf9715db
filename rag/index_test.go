package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/llm/embedding"
	"github.com/BaSui01/roundtable/types"
)

type constantEmbedder struct {
	calls int
	err   error
}

func (c *constantEmbedder) Embed(ctx context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	resp := &embedding.EmbeddingResponse{Provider: "const"}
	for i := range req.Input {
		resp.Embeddings = append(resp.Embeddings, embedding.EmbeddingData{Index: i, Embedding: []float64{1, 0}})
	}
	return resp, nil
}

func (c *constantEmbedder) EmbedQuery(ctx context.Context, q string) ([]float64, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *constantEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	resp, err := c.Embed(ctx, &embedding.EmbeddingRequest{Input: docs})
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Embedding
	}
	return out, nil
}

func (c *constantEmbedder) Name() string    { return "const" }
func (c *constantEmbedder) Dimensions() int { return 2 }

func thread(id string, bodies ...string) *types.Thread {
	th := types.NewThread(id)
	for i, b := range bodies {
		th.Append(types.NewAgentMessage(fmt.Sprintf("p%d", i%3), b, "echo", "echo-1"))
	}
	return th
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx := NewIndex(nil, nil)
	res, err := idx.Query(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.NotNil(t, res)
}

func TestIndex_QueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	th := thread("t1",
		"the cat sat on the mat",
		"stock markets fell sharply today",
		"my cat likes the warm mat",
		"rain is expected tomorrow",
	)
	idx := NewIndex(embedding.NewHashingProvider(512), nil)
	require.NoError(t, idx.Sync(ctx, th))
	assert.Equal(t, 4, idx.Len())

	res, err := idx.Query(ctx, "cat on a mat", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	positions := []int{res[0].Position, res[1].Position}
	assert.ElementsMatch(t, []int{0, 2}, positions)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestIndex_TiesPreferRecent(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(&constantEmbedder{}, nil)
	require.NoError(t, idx.Sync(ctx, thread("t", "a", "b", "c", "d")))

	res, err := idx.Query(ctx, "q", 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{res[0].Position, res[1].Position, res[2].Position})
}

func TestIndex_QueryBefore(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(&constantEmbedder{}, nil)
	require.NoError(t, idx.Sync(ctx, thread("t", "a", "b", "c", "d", "e")))

	res, err := idx.QueryBefore(ctx, "q", 10, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Less(t, r.Position, 2)
	}

	res, err = idx.QueryBefore(ctx, "q", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestIndex_SkipsDividersAndBlank(t *testing.T) {
	ctx := context.Background()
	th := thread("t", "hello")
	th.Append(types.NewDividerMessage("Anna is not available at the moment."))
	th.Append(types.NewUserMessage("User", "   "))
	th.Append(types.NewUserMessage("User", "world"))

	idx := NewIndex(nil, nil)
	require.NoError(t, idx.Sync(ctx, th))
	assert.Equal(t, 2, idx.Len())

	res, err := idx.Query(ctx, "world", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 3, res[0].Position)
}

func TestIndex_SyncIsIncremental(t *testing.T) {
	ctx := context.Background()
	emb := &constantEmbedder{}
	idx := NewIndex(emb, nil)
	th := thread("t", "a", "b")

	require.NoError(t, idx.Sync(ctx, th))
	assert.Equal(t, 1, emb.calls)

	require.NoError(t, idx.Sync(ctx, th))
	assert.Equal(t, 1, emb.calls, "no new messages, no embedding")

	th.Append(types.NewUserMessage("User", "c"))
	require.NoError(t, idx.Sync(ctx, th))
	assert.Equal(t, 2, emb.calls)
	assert.Equal(t, 3, idx.Len())
}

func TestIndex_SyncRebuildsOnThreadSwitch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(&constantEmbedder{}, nil)
	require.NoError(t, idx.Sync(ctx, thread("one", "a", "b", "c")))
	require.NoError(t, idx.Sync(ctx, thread("two", "x")))
	assert.Equal(t, "two", idx.ThreadID())
	assert.Equal(t, 1, idx.Len())

	idx.Reset()
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.ThreadID())
}

func TestIndex_SyncRebuildsOnRewrittenHistory(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(&constantEmbedder{}, nil)
	require.NoError(t, idx.Sync(ctx, thread("t", "a", "b", "c")))

	rewritten := thread("t", "a", "b", "C!")
	require.NoError(t, idx.Sync(ctx, rewritten))
	assert.Equal(t, 3, idx.Len())
	res, err := idx.QueryBefore(ctx, "q", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, "C!", res[0].Message.Body)
}

func TestIndex_EmbedError(t *testing.T) {
	boom := errors.New("boom")
	idx := NewIndex(&constantEmbedder{err: boom}, nil)
	err := idx.Sync(context.Background(), thread("t", "a"))
	assert.ErrorIs(t, err, boom)
}

func TestIndex_RebuildMatchesIncremental(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		words := rapid.SliceOfN(rapid.SampledFrom([]string{"alpha", "beta", "gamma", "delta", "omega"}), 1, 30).Draw(t, "words")
		th := types.NewThread("t")
		incremental := NewIndex(nil, nil)
		for i, w := range words {
			th.Append(types.NewUserMessage("User", fmt.Sprintf("%s %d", w, i%4)))
			if err := incremental.Sync(ctx, th); err != nil {
				t.Fatalf("sync: %v", err)
			}
		}
		rebuilt := NewIndex(nil, nil)
		if err := rebuilt.Rebuild(ctx, th); err != nil {
			t.Fatalf("rebuild: %v", err)
		}

		k := rapid.IntRange(1, 10).Draw(t, "k")
		before := rapid.IntRange(0, len(words)+1).Draw(t, "before")
		a, err := incremental.QueryBefore(ctx, "alpha 1", k, before)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		b, err := rebuilt.QueryBefore(ctx, "alpha 1", k, before)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(a) != len(b) {
			t.Fatalf("len %d != %d", len(a), len(b))
		}
		seen := map[int]bool{}
		for i := range a {
			if a[i].Position != b[i].Position {
				t.Fatalf("position %d: %d != %d", i, a[i].Position, b[i].Position)
			}
			if a[i].Position >= before || seen[a[i].Position] {
				t.Fatalf("bad position %d", a[i].Position)
			}
			seen[a[i].Position] = true
			if i > 0 && a[i].Score > a[i-1].Score {
				t.Fatalf("not sorted at %d", i)
			}
		}
		if len(a) > k {
			t.Fatalf("returned %d > k=%d", len(a), k)
		}
	})
}
