package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/types"
)

// --- HashingProvider ---

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func TestHashingProvider_Deterministic(t *testing.T) {
	p := NewHashingProvider(0)
	assert.Equal(t, 256, p.Dimensions())

	a, err := p.EmbedQuery(context.Background(), "The weather is nice today")
	require.NoError(t, err)
	b, err := p.EmbedQuery(context.Background(), "the WEATHER is nice today!")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-9)
}

func TestHashingProvider_EmptyText(t *testing.T) {
	p := NewHashingProvider(16)
	v, err := p.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, 16)
	assert.Zero(t, norm(v))
}

func TestHashingProvider_UnitNormProperty(t *testing.T) {
	p := NewHashingProvider(64)
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-z]{1,8}( [a-z]{1,8}){0,10}`).Draw(t, "text")
		v, err := p.EmbedQuery(context.Background(), text)
		if err != nil {
			t.Fatalf("embed: %v", err)
		}
		if n := norm(v); math.Abs(n-1) > 1e-9 {
			t.Fatalf("norm = %v", n)
		}
	})
}

func TestHashingProvider_EmbedDocuments(t *testing.T) {
	p := NewHashingProvider(32)
	docs, err := p.EmbedDocuments(context.Background(), []string{"a b", "c", "a b"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, docs[0], docs[2])

	none, err := p.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// --- OpenAIProvider ---

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, 3, req.Dimensions)

		// Out of order on purpose.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "text-embedding-3-small",
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0, 1, 0}},
				{"index": 0, "embedding": []float64{1, 0, 0}},
			},
			"usage": map[string]int{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 3})
	docs, err := p.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0, 0}, {0, 1, 0}}, docs)
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "slow down")
}

func TestOpenAIProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL})
	_, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.Equal(t, types.ErrProvider, types.GetErrorCode(err))
}

// --- GenAIProvider ---

type fakeEmbedder struct {
	model  string
	config *genai.EmbedContentConfig
	err    error
}

func (f *fakeEmbedder) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	resp := &genai.EmbedContentResponse{}
	for i := range contents {
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{Values: []float32{float32(i), 1}})
	}
	return resp, nil
}

func TestGenAIProvider_Embed(t *testing.T) {
	fe := &fakeEmbedder{}
	p := NewGenAIProviderWithModels(fe, GenAIConfig{Dimensions: 2})

	docs, err := p.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0, 1}, {1, 1}}, docs)
	assert.Equal(t, "gemini-embedding-001", fe.model)
	assert.Equal(t, "SEMANTIC_SIMILARITY", fe.config.TaskType)
	require.NotNil(t, fe.config.OutputDimensionality)
	assert.Equal(t, int32(2), *fe.config.OutputDimensionality)
}

func TestGenAIProvider_APIError(t *testing.T) {
	fe := &fakeEmbedder{err: genai.APIError{Code: http.StatusGatewayTimeout, Message: "deadline"}}
	p := NewGenAIProviderWithModels(fe, GenAIConfig{})

	_, err := p.EmbedQuery(context.Background(), "q")
	assert.Equal(t, types.ErrTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

// --- factory ---

func TestNew(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.Equal(t, "hashing", p.Name())

	p, err = New(context.Background(), Config{Kind: "OpenAI", BaseURL: "http://localhost"})
	require.NoError(t, err)
	assert.Equal(t, "openai-embedding", p.Name())

	_, err = New(context.Background(), Config{Kind: KindGenAI})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))

	_, err = New(context.Background(), Config{Kind: "cohere"})
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
}
