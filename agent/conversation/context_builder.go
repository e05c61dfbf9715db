package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/rag"
	"github.com/BaSui01/roundtable/types"
)

// DefaultMasterTemplate is the instruction shared by every participant.
// {user_name} and {participants} are substituted per prompt.
const DefaultMasterTemplate = "You are in a group conversation with {user_name}, {participants}. " +
	"Each participant may contribute to the conversation. " +
	"When referring to multiple recipients, except the sender use words like 'we' or 'us'. " +
	"When referring to yourself, use 'I'. " +
	"Your responses should coherently follow the entire conversation history, acknowledging inputs from all participants. " +
	"Address any of the participants directly if the conversation context warrants it. " +
	"Remember, {participants} are assistants like yourself, and {user_name} is the human participant. " +
	"Respond as if you are a well-informed, articulate individual. " +
	"Do not mention being an AI, and do not prefix your reply with your name."

var dividerLine = strings.Repeat("-", 40)

// ContextOptions bounds the prompts a ContextBuilder produces.
type ContextOptions struct {
	UserName       string
	MasterTemplate string
	HistoryWindow  int
	TokenBudget    int
	RetrievalTopK  int
}

// Eviction counts what budget enforcement removed from a prompt.
type Eviction struct {
	History  int
	Snippets int
	Stimulus bool
}

// Prompt is the assembled input of one participant's turn.
type Prompt struct {
	Participant personality.Personality

	// System is the master template plus the participant's own instruction.
	// It is never shortened.
	System string

	// Snippets are retrieved older messages in rank order.
	Snippets []rag.Result

	// History is the recent window in chronological order.
	History []types.Message

	// Stimulus is the message being responded to, if it survived eviction.
	Stimulus    types.Message
	HasStimulus bool

	// Text is the rendered history, snippets and speaking cue.
	Text string

	// Tokens is the estimated size of System plus Text.
	Tokens  int
	Evicted Eviction
}

// ContextBuilder assembles token-bounded prompts from a thread.
type ContextBuilder struct {
	opts    ContextOptions
	counter types.TokenCounter
	logger  *zap.Logger
}

// NewContextBuilder creates a builder. Zero options fall back to defaults.
func NewContextBuilder(opts ContextOptions, counter types.TokenCounter, logger *zap.Logger) *ContextBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.UserName == "" {
		opts.UserName = "User"
	}
	if opts.MasterTemplate == "" {
		opts.MasterTemplate = DefaultMasterTemplate
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = 6000
	}
	if counter == nil {
		counter = types.TokenCounterFunc(func(s string) int { return (len(s) + 3) / 4 })
	}
	return &ContextBuilder{
		opts:    opts,
		counter: counter,
		logger:  logger.With(zap.String("component", "context_builder")),
	}
}

// SystemFor renders the system instructions of target.
func (b *ContextBuilder) SystemFor(reg *personality.Registry, target personality.Personality) string {
	var others []string
	for _, p := range reg.Mains() {
		if p.ID != target.ID {
			others = append(others, p.Name)
		}
	}
	master := strings.NewReplacer(
		"{user_name}", b.opts.UserName,
		"{participants}", strings.Join(others, ", "),
	).Replace(b.opts.MasterTemplate)
	if target.SystemInstruction == "" {
		return master
	}
	return master + "\n" + target.SystemInstruction
}

type windowEntry struct {
	msg      types.Message
	stimulus bool
}

// Build assembles the prompt of target for the current state of thread.
// The last HistoryWindow messages form the recent history. When the thread
// is longer than the window, up to RetrievalTopK older messages relevant to
// the stimulus are retrieved from index. A nil index disables retrieval.
//
// When the estimate exceeds TokenBudget the oldest history goes first, then
// the lowest-ranked snippets, then the stimulus. System instructions are
// never cut: if they alone exceed the budget the build fails with
// CONTEXT_OVERFLOW.
func (b *ContextBuilder) Build(ctx context.Context, reg *personality.Registry, target personality.Personality, thread *types.Thread, index *rag.Index) (*Prompt, error) {
	system := b.SystemFor(reg, target)
	sysTokens := b.counter.CountTokens(system)
	if sysTokens > b.opts.TokenBudget {
		return nil, types.Errorf(types.ErrContextOverflow,
			"system instructions of %s need %d tokens, budget is %d", target.Name, sysTokens, b.opts.TokenBudget)
	}

	msgs := thread.Messages
	start := max(0, len(msgs)-b.opts.HistoryWindow)
	window := make([]windowEntry, 0, len(msgs)-start)
	stimulusAt := -1
	for i := start; i < len(msgs); i++ {
		if msgs[i].IsPartial {
			continue
		}
		window = append(window, windowEntry{msg: msgs[i]})
		if !msgs[i].IsDivider {
			stimulusAt = len(window) - 1
		}
	}
	if stimulusAt >= 0 {
		window[stimulusAt].stimulus = true
	}

	var snippets []rag.Result
	if index != nil && b.opts.RetrievalTopK > 0 && start > 0 && stimulusAt >= 0 {
		res, err := index.QueryBefore(ctx, window[stimulusAt].msg.Body, b.opts.RetrievalTopK, start)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn("retrieval failed, continuing without snippets",
				zap.String("thread_id", thread.ID), zap.Error(err))
		} else {
			snippets = res
		}
	}

	p := &Prompt{Participant: target, System: system}
	for {
		text := b.render(target, window, snippets)
		tokens := sysTokens + b.counter.CountTokens(text)
		if tokens <= b.opts.TokenBudget {
			p.Text = text
			p.Tokens = tokens
			break
		}
		switch {
		case evictOldest(&window):
			p.Evicted.History++
		case len(snippets) > 0:
			snippets = snippets[:len(snippets)-1]
			p.Evicted.Snippets++
		case len(window) > 0:
			window = window[:0]
			p.Evicted.Stimulus = true
		default:
			return nil, types.Errorf(types.ErrContextOverflow,
				"prompt of %s needs %d tokens, budget is %d", target.Name, tokens, b.opts.TokenBudget)
		}
	}

	p.Snippets = snippets
	p.History = make([]types.Message, 0, len(window))
	for _, e := range window {
		p.History = append(p.History, e.msg)
		if e.stimulus {
			p.Stimulus = e.msg
			p.HasStimulus = true
		}
	}
	return p, nil
}

// evictOldest removes the oldest entry that is not the stimulus.
func evictOldest(window *[]windowEntry) bool {
	w := *window
	for i, e := range w {
		if !e.stimulus {
			*window = append(w[:i:i], w[i+1:]...)
			return true
		}
	}
	return false
}

func (b *ContextBuilder) render(target personality.Personality, window []windowEntry, snippets []rag.Result) string {
	var sb strings.Builder
	if len(snippets) > 0 {
		sb.WriteString("Relevant earlier messages:\n")
		for _, s := range snippets {
			sb.WriteString("[earlier] ")
			writeLine(&sb, s.Message)
		}
		sb.WriteString("\n")
	}
	if len(window) > 0 {
		sb.WriteString("Conversation history:\n")
		for _, e := range window {
			writeLine(&sb, e.msg)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(target.Name)
	sb.WriteString(":")
	return sb.String()
}

// writeLine renders one history line as "[role] Sender: body". Dividers
// keep their separator form.
func writeLine(sb *strings.Builder, msg types.Message) {
	if msg.IsDivider {
		sb.WriteString(dividerLine)
		sb.WriteString("\n")
		if msg.Body != "" {
			sb.WriteString(msg.Body)
			sb.WriteString("\n")
		}
		return
	}
	sb.WriteString("[")
	sb.WriteString(string(msg.Role()))
	sb.WriteString("] ")
	sb.WriteString(msg.Sender)
	sb.WriteString(": ")
	sb.WriteString(msg.Body)
	sb.WriteString("\n")
}

// CleanResponse strips an echoed speaker prefix: everything up to and
// including the last "name:" is dropped.
func CleanResponse(text, name string) string {
	if name != "" {
		if i := strings.LastIndex(text, name+":"); i >= 0 {
			text = text[i+len(name)+1:]
		}
	}
	return strings.TrimSpace(text)
}
