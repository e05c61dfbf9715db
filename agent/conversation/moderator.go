package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/internal/telemetry"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// Category is the context class reported by the context detector.
type Category string

const (
	CategoryCode     Category = "CODE"
	CategoryResearch Category = "RESEARCH"
	CategoryGeneral  Category = "GENERAL"
)

// ParseCategory extracts a category from detector output. Anything
// unrecognized is GENERAL.
func ParseCategory(s string) Category {
	for _, f := range strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !isWordRune(r)
	}) {
		switch Category(f) {
		case CategoryCode, CategoryResearch, CategoryGeneral:
			return Category(f)
		}
	}
	return CategoryGeneral
}

const maxTopicWords = 10

// CleanTopic normalizes topic generator output: first non-empty line, a
// "Topic:" label and surrounding quotes removed, at most ten words.
func CleanTopic(s string) string {
	var line string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if len(line) >= 6 && strings.EqualFold(line[:6], "topic:") {
		line = strings.TrimSpace(line[6:])
	}
	line = strings.Trim(line, " \t\"'“”‘’*#`")
	words := strings.Fields(line)
	if len(words) > maxTopicWords {
		words = words[:maxTopicWords]
	}
	return strings.Join(words, " ")
}

type transcriptLine struct {
	text string
	keep bool
}

// transcript renders thread for the helper personalities. User messages and
// directly addressed exchanges are kept whole; other messages are cut to
// their first sentence. Dividers are omitted.
func transcript(reg *personality.Registry, thread *types.Thread) []transcriptLine {
	lines := make([]transcriptLine, 0, len(thread.Messages))
	awaiting := ""
	for _, msg := range thread.Messages {
		if msg.IsDivider || msg.IsPartial {
			continue
		}
		keep := msg.Role() == types.RoleUser || (awaiting != "" && msg.Sender == awaiting)
		awaiting = ""
		if addr, ok := DetectAddressee(msg.Body, addressable(reg, msg.Sender)); ok {
			keep = true
			awaiting = addr.Personality.Name
		}
		body := strings.TrimSpace(msg.Body)
		if !keep {
			body = firstSentence(body)
		}
		lines = append(lines, transcriptLine{text: msg.Sender + ": " + body, keep: keep})
	}
	return lines
}

// compact drops lines until fits accepts the joined transcript: the oldest
// shortened lines go first, then the oldest kept ones.
func compact(lines []transcriptLine, fits func(string) bool) string {
	lines = append([]transcriptLine(nil), lines...)
	for {
		text := joinLines(lines)
		if fits(text) || len(lines) == 0 {
			return text
		}
		drop := 0
		for i, l := range lines {
			if !l.keep {
				drop = i
				break
			}
		}
		lines = append(lines[:drop], lines[drop+1:]...)
	}
}

func joinLines(lines []transcriptLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

func firstSentence(s string) string {
	for i, r := range s {
		switch r {
		case '\n':
			return strings.TrimSpace(s[:i])
		case '.', '!', '?':
			if i+1 == len(s) || s[i+1] == ' ' || s[i+1] == '\n' {
				return s[:i+1]
			}
		}
	}
	return s
}

// helperPrompt fits the compacted transcript of thread into the summary
// budget around the given header and closing instruction.
func (o *Orchestrator) helperPrompt(reg *personality.Registry, system string, thread *types.Thread, header, closing string) string {
	render := func(body string) string {
		var sb strings.Builder
		if header != "" {
			sb.WriteString(header)
			sb.WriteString("\n\n")
		}
		sb.WriteString("Conversation:\n")
		sb.WriteString(body)
		sb.WriteString("\n\n")
		sb.WriteString(closing)
		return sb.String()
	}
	sysTokens := o.counter.CountTokens(system)
	body := compact(transcript(reg, thread), func(body string) bool {
		return sysTokens+o.counter.CountTokens(render(body)) <= o.cfg.SummaryTokenBudget
	})
	return render(body)
}

func (o *Orchestrator) helper(ctx context.Context, p personality.Personality, system, prompt string) (string, error) {
	res, err := o.dispatcher.Dispatch(types.WithParticipant(ctx, p.ID), &llm.DispatchRequest{
		Participant: p.Name,
		ProviderID:  p.ProviderID,
		Model:       p.Model,
		System:      system,
		Prompt:      prompt,
		MaxTokens:   o.cfg.MaxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	o.recorder.RecordTokens(res.Provider, res.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens)
	return CleanResponse(res.Text, p.Name), nil
}

// =============================================================================
// 🧑‍⚖️ Moderator
// =============================================================================

// Summarize asks the moderator for a summary of the active thread. It may be
// called while a round is running and never modifies the thread.
func (o *Orchestrator) Summarize(ctx context.Context, sess *Session) (string, error) {
	thread := sess.Thread()
	if thread == nil {
		return "", types.NewError(types.ErrInvalidTransition, "no active thread")
	}
	reg := o.personalities.Snapshot()
	mod, err := o.moderator(reg)
	if err != nil {
		return "", err
	}

	ctx, span := telemetry.StartSpan(ctx, "conversation.summarize",
		attribute.String("thread.id", thread.ID),
		attribute.Int("thread.messages", thread.Len()),
	)
	category := o.detectCategory(ctx, reg, thread)
	header := "Topic: " + thread.Topic
	if category != "" {
		header += "\nContext: " + string(category)
	}
	prompt := o.helperPrompt(reg, mod.SystemInstruction, thread, header, "Provide a summary of this conversation.")
	summary, err := o.helper(ctx, mod, mod.SystemInstruction, prompt)
	if err == nil && summary == "" {
		err = types.NewError(types.ErrEmptyResponse, "moderator returned no text")
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		return "", err
	}
	return summary, nil
}

func (o *Orchestrator) moderator(reg *personality.Registry) (personality.Personality, error) {
	if p, ok := reg.Get(o.cfg.ModeratorID); ok {
		return p, nil
	}
	for _, p := range reg.All() {
		if p.Role == personality.RoleModerator {
			return p, nil
		}
	}
	return personality.Personality{}, types.Errorf(types.ErrConfiguration, "no moderator personality %q", o.cfg.ModeratorID)
}

// detectCategory returns "" when no detector is registered or it fails.
func (o *Orchestrator) detectCategory(ctx context.Context, reg *personality.Registry, thread *types.Thread) Category {
	p, ok := reg.Get(o.cfg.ContextDetectorID)
	if !ok {
		return ""
	}
	prompt := o.helperPrompt(reg, p.SystemInstruction, thread, "", "Category:")
	out, err := o.helper(ctx, p, p.SystemInstruction, prompt)
	if err != nil {
		o.logger.Debug("context detection skipped", zap.String("thread_id", thread.ID), zap.Error(err))
		return ""
	}
	return ParseCategory(out)
}

// =============================================================================
// 🏷️ Topic
// =============================================================================

// GenerateTopic names the active thread with the topic generator and saves it.
func (o *Orchestrator) GenerateTopic(ctx context.Context, sess *Session) (string, error) {
	if err := sess.acquire(ctx); err != nil {
		return "", err
	}
	defer sess.release()

	topic, err := o.generateTopic(ctx, sess, o.personalities.Snapshot())
	if err != nil {
		return "", err
	}
	if err := o.save(ctx, sess.Thread()); err != nil {
		return topic, err
	}
	return topic, nil
}

// generateTopic is called with the turn lock held.
func (o *Orchestrator) generateTopic(ctx context.Context, sess *Session, reg *personality.Registry) (string, error) {
	thread := sess.Thread()
	if thread == nil {
		return "", types.NewError(types.ErrInvalidTransition, "no active thread")
	}
	if thread.Len() == 0 {
		return "", types.NewError(types.ErrInvalidTransition, "thread has no messages")
	}
	p, ok := reg.Get(o.cfg.TopicGeneratorID)
	if !ok {
		return "", types.Errorf(types.ErrConfiguration, "no topic generator personality %q", o.cfg.TopicGeneratorID)
	}

	prompt := o.helperPrompt(reg, p.SystemInstruction, thread, "", "Topic:")
	out, err := o.helper(ctx, p, p.SystemInstruction, prompt)
	if err != nil {
		return "", err
	}
	topic := CleanTopic(out)
	if topic == "" {
		return "", types.NewError(types.ErrEmptyResponse, "topic generator returned no text")
	}

	sess.mu.Lock()
	if sess.thread != nil && sess.thread.ID == thread.ID {
		sess.thread.Topic = topic
	}
	sess.mu.Unlock()
	o.logger.Debug("topic generated", zap.String("thread_id", thread.ID), zap.String("topic", topic))
	return topic, nil
}
