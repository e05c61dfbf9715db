package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

func TestParseCategory(t *testing.T) {
	tests := map[string]Category{
		"CODE":                CategoryCode,
		"category: code":      CategoryCode,
		"This is RESEARCH.":   CategoryResearch,
		"general chit-chat":   CategoryGeneral,
		"no idea":             CategoryGeneral,
		"":                    CategoryGeneral,
		"**RESEARCH** / CODE": CategoryResearch,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCategory(in), in)
	}
}

func TestCleanTopic(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: `Topic: "City Planning"`, want: "City Planning"},
		{in: "\n\n  **Urban growth**\nsecond line", want: "Urban growth"},
		{in: "one two three four five six seven eight nine ten eleven twelve", want: "one two three four five six seven eight nine ten"},
		{in: "“Quoted”", want: "Quoted"},
		{in: "   ", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTopic(tt.in), tt.in)
	}
}

func TestFirstSentence(t *testing.T) {
	assert.Equal(t, "Hi.", firstSentence("Hi. There"))
	assert.Equal(t, "Really?", firstSentence("Really? Yes"))
	assert.Equal(t, "No end", firstSentence("No end"))
	assert.Equal(t, "Line one", firstSentence("Line one\nLine two"))
	assert.Equal(t, "Version 1.2 shipped.", firstSentence("Version 1.2 shipped. Next"))
}

func compactionThread() *types.Thread {
	return threadOf(
		types.NewUserMessage("User", "Long question here. With more detail."),
		types.NewAgentMessage("Vanessa", "First point. Second point.", "fake", "m"),
		types.NewAgentMessage("Nicole", "Dyann, what do you say? More text.", "fake", "m"),
		types.NewAgentMessage("Dyann", "I say yes. Because reasons.", "fake", "m"),
		types.NewDividerMessage("Vanessa is not available at the moment. (TIMEOUT)"),
		types.NewAgentMessage("Vanessa", "Closing thought. The end.", "fake", "m"),
	)
}

func TestTranscript(t *testing.T) {
	lines := transcript(testRegistry(t), compactionThread())
	want := []transcriptLine{
		{text: "User: Long question here. With more detail.", keep: true},
		{text: "Vanessa: First point.", keep: false},
		{text: "Nicole: Dyann, what do you say? More text.", keep: true},
		{text: "Dyann: I say yes. Because reasons.", keep: true},
		{text: "Vanessa: Closing thought.", keep: false},
	}
	assert.Equal(t, want, lines)
}

func TestCompact_DropOrder(t *testing.T) {
	lines := transcript(testRegistry(t), compactionThread())
	within := func(n int) func(string) bool {
		return func(s string) bool { return wordCounter.CountTokens(s) <= n }
	}

	assert.Equal(t, joinLines(lines), compact(lines, within(27)))

	got := compact(lines, within(24))
	assert.NotContains(t, got, "First point")
	assert.Contains(t, got, "Closing thought")

	got = compact(lines, within(21))
	assert.NotContains(t, got, "Closing thought")
	assert.Contains(t, got, "Long question")

	got = compact(lines, within(15))
	assert.Equal(t, "Nicole: Dyann, what do you say? More text.\nDyann: I say yes. Because reasons.", got)

	assert.Empty(t, compact(lines, within(0)))
	assert.Len(t, lines, 5, "input is not modified")
}

func registryWithout(t *testing.T, ids ...string) *personality.Store {
	t.Helper()
	skip := map[string]bool{}
	for _, id := range ids {
		skip[id] = true
	}
	var ps []personality.Personality
	for _, p := range personality.Defaults("fake") {
		if !skip[p.ID] {
			ps = append(ps, p)
		}
	}
	reg, err := personality.NewRegistry(ps...)
	require.NoError(t, err)
	return personality.NewStore(reg)
}

func TestSummarize(t *testing.T) {
	disp := &fakeDispatcher{}
	h := newHarness(t, testConfig(), disp)
	ctx := context.Background()
	sess := h.orch.NewSession()

	_, err := h.orch.Summarize(ctx, sess)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))

	_, err = h.orch.Submit(ctx, sess, "Parks or roads?", []string{"nicole"})
	require.NoError(t, err)
	before := sess.Thread()

	summary, err := h.orch.Summarize(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "A fine summary.", summary)
	assert.Equal(t, before, sess.Thread(), "summaries are not committed")

	require.Len(t, disp.callsFor("ContextDetector"), 1)
	calls := disp.callsFor("Moderator")
	require.Len(t, calls, 1)
	mod, _ := testRegistry(t).Get("moderator")
	assert.Equal(t, mod.SystemInstruction, calls[0].System)
	assert.Equal(t, "Topic: City Planning\nContext: GENERAL\n\nConversation:\n"+
		"User: Parks or roads?\nNicole: Hello from Nicole\n\n"+
		"Provide a summary of this conversation.", calls[0].Prompt)
}

func TestSummarize_WithoutDetector(t *testing.T) {
	disp := &fakeDispatcher{}
	h := newHarness(t, testConfig(), disp, func(d *Deps) {
		d.Personalities = registryWithout(t, "context_detector")
	})
	ctx := context.Background()
	sess := h.orch.NewSession()
	_, err := h.orch.Submit(ctx, sess, "hi", []string{"dyann"})
	require.NoError(t, err)

	_, err = h.orch.Summarize(ctx, sess)
	require.NoError(t, err)
	calls := disp.callsFor("Moderator")
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].Prompt, "Context:")
}

func TestSummarize_DetectorFailureIsSkipped(t *testing.T) {
	disp := &fakeDispatcher{reply: func(ctx context.Context, req *llm.DispatchRequest) (string, error) {
		if req.Participant == "ContextDetector" {
			return "", types.NewError(types.ErrProvider, "down")
		}
		return defaultReply(ctx, req)
	}}
	h := newHarness(t, testConfig(), disp)
	ctx := context.Background()
	sess := h.orch.NewSession()
	_, err := h.orch.Submit(ctx, sess, "hi", []string{"dyann"})
	require.NoError(t, err)

	summary, err := h.orch.Summarize(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "A fine summary.", summary)
	assert.NotContains(t, disp.callsFor("Moderator")[0].Prompt, "Context:")
}

func TestSummarize_MissingModerator(t *testing.T) {
	h := newHarness(t, testConfig(), &fakeDispatcher{}, func(d *Deps) {
		d.Personalities = registryWithout(t, "moderator")
	})
	ctx := context.Background()
	sess := h.orch.NewSession()
	_, err := h.orch.Submit(ctx, sess, "hi", []string{"dyann"})
	require.NoError(t, err)

	_, err = h.orch.Summarize(ctx, sess)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}

func TestSummarize_RespectsBudget(t *testing.T) {
	mod, _ := testRegistry(t).Get("moderator")
	budget := wordCounter.CountTokens(mod.SystemInstruction) + 40

	cfg := testConfig()
	cfg.SummaryTokenBudget = budget
	cfg.AutoTopic = false
	disp := &fakeDispatcher{}
	h := newHarness(t, cfg, disp, func(d *Deps) {
		d.Personalities = registryWithout(t, "context_detector")
	})
	ctx := context.Background()
	sess := h.orch.NewSession()
	for i := 0; i < 10; i++ {
		_, err := h.orch.Submit(ctx, sess, "a rather long user message about parks and roads", []string{"nicole"})
		require.NoError(t, err)
	}

	_, err := h.orch.Summarize(ctx, sess)
	require.NoError(t, err)
	prompt := disp.callsFor("Moderator")[0].Prompt
	assert.LessOrEqual(t, wordCounter.CountTokens(mod.SystemInstruction)+wordCounter.CountTokens(prompt), budget)
	assert.True(t, strings.HasSuffix(prompt, "Provide a summary of this conversation."))
	assert.Contains(t, prompt, "User: a rather long user message about parks and roads")
	assert.NotContains(t, prompt, "Nicole:", "shortened lines are dropped before user messages")
}

func TestGenerateTopic(t *testing.T) {
	cfg := testConfig()
	cfg.AutoTopic = false
	disp := &fakeDispatcher{}
	h := newHarness(t, cfg, disp)
	ctx := context.Background()
	sess := h.orch.NewSession()

	_, err := h.orch.GenerateTopic(ctx, sess)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))

	_, err = h.orch.Submit(ctx, sess, "Parks or roads?", []string{"nicole"})
	require.NoError(t, err)
	assert.Empty(t, sess.Thread().Topic)

	topic, err := h.orch.GenerateTopic(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "City Planning", topic)
	assert.Equal(t, "City Planning", sess.Thread().Topic)

	stored, err := h.store.Load(ctx, sess.ThreadID())
	require.NoError(t, err)
	assert.Equal(t, "City Planning", stored.Topic)
}

func TestGenerateTopic_MissingGenerator(t *testing.T) {
	cfg := testConfig()
	cfg.AutoTopic = false
	h := newHarness(t, cfg, &fakeDispatcher{}, func(d *Deps) {
		d.Personalities = registryWithout(t, "topic_generator")
	})
	ctx := context.Background()
	sess := h.orch.NewSession()
	_, err := h.orch.Submit(ctx, sess, "hi", []string{"dyann"})
	require.NoError(t, err)

	_, err = h.orch.GenerateTopic(ctx, sess)
	assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
}
