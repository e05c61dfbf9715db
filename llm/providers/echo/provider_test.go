package echo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/llm"
)

func TestReply(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"empty", "", "Hello."},
		{"cue only", "Marco:", "Hello."},
		{"last line", "User: hi\nAnna: ciao\nMarco:", "You said: ciao"},
		{"divider skipped", "User: hi\n----------------------------------------\nMarco:", "You said: hi"},
		{"plain text", "what now", "You said: what now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reply(tt.prompt))
		})
	}
}

func TestProvider_Generate(t *testing.T) {
	p := New("", "")
	assert.Equal(t, "echo", p.Name())

	resp, err := p.Generate(context.Background(), &llm.GenerateRequest{Prompt: "User: hi\nMarco:"})
	require.NoError(t, err)
	assert.Equal(t, "echo-1", resp.Model)
	assert.Equal(t, "You said: hi", resp.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, &llm.GenerateRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider_Stream(t *testing.T) {
	p := New("e", "m")
	ch, err := p.Stream(context.Background(), &llm.GenerateRequest{Prompt: "User: good morning"})
	require.NoError(t, err)

	var text string
	var last llm.StreamChunk
	for c := range ch {
		text += c.Delta
		last = c
	}
	assert.Equal(t, "You said: good morning", text)
	assert.Equal(t, "stop", last.FinishReason)
}
