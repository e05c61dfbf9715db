package conversation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/agent/persistence"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/telemetry"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/embedding"
	"github.com/BaSui01/roundtable/rag"
	"github.com/BaSui01/roundtable/types"
)

// Dispatcher runs one participant's generation call. *llm.Dispatcher
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *llm.DispatchRequest) (*llm.DispatchResult, error)
}

// Recorder receives orchestration measurements. *metrics.Collector
// implements it.
type Recorder interface {
	RecordRound(kind, outcome string, participants int, duration time.Duration)
	RecordStateTransition(from, to string)
	RecordContext(snippets, evictedHistory, evictedSnippets, evictedStimulus int)
	RecordStoreOperation(operation string, err error, duration time.Duration)
	RecordTokens(provider, model string, promptTokens, completionTokens int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRound(string, string, int, time.Duration) {}
func (nopRecorder) RecordStateTransition(string, string) {}
func (nopRecorder) RecordContext(int, int, int, int) {}
func (nopRecorder) RecordStoreOperation(string, error, time.Duration) {}
func (nopRecorder) RecordTokens(string, string, int, int) {}

// Config tunes the orchestrator.
type Config struct {
	UserName       string
	MasterTemplate string

	HistoryWindow    int
	TokenBudget      int
	RetrievalTopK    int
	RetrievalEnabled bool

	// MaxInFlight bounds concurrent generation calls of one round.
	MaxInFlight     int
	MaxOutputTokens int

	SummaryTokenBudget int
	ModeratorID        string
	TopicGeneratorID   string
	ContextDetectorID  string

	// AutoTopic names a thread after its first completed round.
	AutoTopic bool
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		UserName:           "User",
		MasterTemplate:     DefaultMasterTemplate,
		HistoryWindow:      20,
		TokenBudget:        6000,
		RetrievalTopK:      5,
		RetrievalEnabled:   true,
		MaxInFlight:        4,
		MaxOutputTokens:    1024,
		SummaryTokenBudget: 3000,
		ModeratorID:        "moderator",
		TopicGeneratorID:   "topic_generator",
		ContextDetectorID:  "context_detector",
		AutoTopic:          true,
	}
}

// ConfigFrom maps the loaded application config onto Config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.UserName = cfg.Conversation.UserName
	c.HistoryWindow = cfg.Context.HistoryWindow
	c.TokenBudget = cfg.Context.TokenBudget
	c.RetrievalTopK = cfg.Context.RetrievalTopK
	c.RetrievalEnabled = cfg.Retrieval.Enabled
	c.MaxInFlight = cfg.Dispatch.MaxInFlight
	c.MaxOutputTokens = cfg.Context.MaxOutputTokens
	c.SummaryTokenBudget = cfg.Moderator.SummaryTokenBudget
	c.ModeratorID = cfg.Conversation.ModeratorID
	c.TopicGeneratorID = cfg.Conversation.TopicGeneratorID
	c.ContextDetectorID = cfg.Conversation.ContextDetectorID
	return c
}

// Deps are the collaborators of an Orchestrator. Personalities, Dispatcher
// and Store are required.
type Deps struct {
	Personalities *personality.Store
	Dispatcher    Dispatcher
	Store         persistence.ThreadStore

	// Embedder backs retrieval. Nil selects the hashing embedder.
	Embedder embedding.Provider
	Counter  types.TokenCounter
	Listener Listener
	Recorder Recorder

	// Rand drives broadcast order. Nil is seeded randomly.
	Rand rand.Source

	// NewID generates thread, session and round identifiers.
	NewID func() string
}

// Orchestrator drives conversation sessions: it schedules rounds, builds
// prompts, dispatches generation calls, commits results in schedule order
// and persists threads.
type Orchestrator struct {
	cfg           Config
	personalities *personality.Store
	dispatcher    Dispatcher
	store         persistence.ThreadStore
	embedder      embedding.Provider
	counter       types.TokenCounter
	builder       *ContextBuilder
	scheduler     *Scheduler
	listener      Listener
	recorder      Recorder
	newID         func() string
	logger        *zap.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Personalities == nil || deps.Dispatcher == nil || deps.Store == nil {
		return nil, types.NewError(types.ErrConfiguration, "orchestrator requires personalities, dispatcher and store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if cfg.SummaryTokenBudget <= 0 {
		cfg.SummaryTokenBudget = DefaultConfig().SummaryTokenBudget
	}
	if deps.Counter == nil {
		deps.Counter = types.TokenCounterFunc(func(s string) int { return (len(s) + 3) / 4 })
	}
	if deps.Listener == nil {
		deps.Listener = ListenerFuncs{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Embedder == nil {
		deps.Embedder = embedding.NewHashingProvider(0)
	}
	logger = logger.With(zap.String("component", "orchestrator"))

	return &Orchestrator{
		cfg:           cfg,
		personalities: deps.Personalities,
		dispatcher:    deps.Dispatcher,
		store:         deps.Store,
		embedder:      deps.Embedder,
		counter:       deps.Counter,
		builder: NewContextBuilder(ContextOptions{
			UserName:       cfg.UserName,
			MasterTemplate: cfg.MasterTemplate,
			HistoryWindow:  cfg.HistoryWindow,
			TokenBudget:    cfg.TokenBudget,
			RetrievalTopK:  cfg.RetrievalTopK,
		}, deps.Counter, logger),
		scheduler: NewScheduler(deps.Rand),
		listener:  deps.Listener,
		recorder:  deps.Recorder,
		newID:     deps.NewID,
		logger:    logger,
	}, nil
}

// NewSession creates an idle session.
func (o *Orchestrator) NewSession() *Session {
	var index *rag.Index
	if o.cfg.RetrievalEnabled && o.cfg.RetrievalTopK > 0 {
		index = rag.NewIndex(o.embedder, o.logger)
	}
	return newSession(o.newID(), index)
}

// =============================================================================
// 🧵 Thread lifecycle
// =============================================================================

// NewTopic saves the active thread, if any, and starts an empty one.
func (o *Orchestrator) NewTopic(ctx context.Context, sess *Session) (*types.Thread, error) {
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()
	return o.startTopic(ctx, sess)
}

func (o *Orchestrator) startTopic(ctx context.Context, sess *Session) (*types.Thread, error) {
	if cur := sess.Thread(); cur != nil && cur.Len() > 0 {
		if err := o.save(ctx, cur); err != nil {
			return nil, err
		}
	}
	thread := types.NewThread(o.newID())
	o.attach(sess, thread)
	o.logger.Debug("new topic", zap.String("session_id", sess.ID()), zap.String("thread_id", thread.ID))
	return thread.Clone(), nil
}

// SwitchThread makes the stored thread id the active thread. It is
// rejected while a round is dispatching. An unknown id fails with
// THREAD_NOT_FOUND and leaves the session untouched.
func (o *Orchestrator) SwitchThread(ctx context.Context, sess *Session, id string) (*types.Thread, error) {
	if sess.State() == StateDispatching {
		return nil, types.NewError(types.ErrInvalidTransition, "cannot switch threads while a round is in progress")
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	loaded, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur := sess.Thread(); cur != nil && cur.ID != id && cur.Len() > 0 {
		if err := o.save(ctx, cur); err != nil {
			return nil, err
		}
	}
	o.attach(sess, loaded)
	return loaded.Clone(), nil
}

func (o *Orchestrator) attach(sess *Session, thread *types.Thread) {
	sess.mu.Lock()
	sess.thread = thread
	sess.followUp = ""
	sess.mu.Unlock()
	if sess.index != nil {
		sess.index.Reset()
	}
	o.transition(sess, StateActive)
}

// ListThreads lists the persisted threads.
func (o *Orchestrator) ListThreads(ctx context.Context) ([]types.ThreadInfo, error) {
	start := time.Now()
	infos, err := o.store.List(ctx)
	o.recorder.RecordStoreOperation("list", err, time.Since(start))
	if err != nil {
		return nil, types.NewError(types.ErrPersistence, "list threads").WithCause(err)
	}
	return infos, nil
}

// DeleteThread removes a persisted thread. The engine never deletes threads
// on its own.
func (o *Orchestrator) DeleteThread(ctx context.Context, id string) error {
	start := time.Now()
	err := o.store.Delete(ctx, id)
	o.recorder.RecordStoreOperation("delete", err, time.Since(start))
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return types.Errorf(types.ErrThreadNotFound, "thread %q not found", id).WithCause(err)
	case err != nil:
		return types.Errorf(types.ErrPersistence, "delete thread %q", id).WithCause(err)
	}
	return nil
}

// Close cancels any in-flight round, saves the active thread and returns
// the session to Idle.
func (o *Orchestrator) Close(ctx context.Context, sess *Session) error {
	o.Cancel(sess)
	if err := sess.acquire(ctx); err != nil {
		return err
	}
	defer sess.release()

	if cur := sess.Thread(); cur != nil && (cur.Len() > 0 || cur.Topic != "") {
		if err := o.save(ctx, cur); err != nil {
			return err
		}
	}
	sess.mu.Lock()
	sess.thread = nil
	sess.followUp = ""
	sess.mu.Unlock()
	if sess.index != nil {
		sess.index.Reset()
	}
	o.transition(sess, StateIdle)
	return nil
}

// =============================================================================
// 🎙️ Rounds
// =============================================================================

// Submit appends a user message and runs a round over the selected
// participants. Non-empty ids replace the session selection. Submitting to
// an idle session starts a new thread. Input arriving while a round is in
// progress waits for it to finish.
//
// The returned messages are the user message followed by one message per
// scheduled participant in schedule order. A failed participant yields a
// divider; the round itself only fails on cancellation or persistence.
func (o *Orchestrator) Submit(ctx context.Context, sess *Session, text string, ids []string) ([]types.Message, error) {
	if len(ids) > 0 {
		sess.Select(ids...)
	}
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	reg := o.personalities.Snapshot()
	user := types.NewUserMessage(o.cfg.UserName, text)
	schedule, err := o.scheduler.Plan(reg, sess.Selection(), user)
	if err != nil {
		return nil, err
	}
	if sess.State() == StateIdle {
		if _, err := o.startTopic(ctx, sess); err != nil {
			return nil, err
		}
	}
	return o.runRound(ctx, sess, reg, schedule, "submit", &user)
}

// ContinueRound runs a round without user input, using the last agent
// message as the stimulus and the session's last selection.
func (o *Orchestrator) ContinueRound(ctx context.Context, sess *Session) ([]types.Message, error) {
	if err := sess.acquire(ctx); err != nil {
		return nil, err
	}
	defer sess.release()

	thread := sess.Thread()
	if thread == nil {
		return nil, types.NewError(types.ErrInvalidTransition, "no active thread")
	}
	stimulus, ok := thread.LastAgentMessage()
	if !ok {
		return nil, types.NewError(types.ErrNothingToContinue, "thread has no participant message to continue from")
	}
	reg := o.personalities.Snapshot()
	schedule, err := o.scheduler.Plan(reg, sess.Selection(), stimulus)
	if err != nil {
		return nil, err
	}
	return o.runRound(ctx, sess, reg, schedule, "continue", nil)
}

// Cancel abandons the in-flight round of sess. Messages already committed
// stay; outstanding turns are discarded. It reports whether a round was
// running.
func (o *Orchestrator) Cancel(sess *Session) bool {
	sess.mu.Lock()
	cancel := sess.cancel
	sess.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// GetContext returns the prompt participantID would receive now.
func (o *Orchestrator) GetContext(ctx context.Context, sess *Session, participantID string) (*Prompt, error) {
	thread := sess.Thread()
	if thread == nil {
		return nil, types.NewError(types.ErrInvalidTransition, "no active thread")
	}
	reg := o.personalities.Snapshot()
	p, err := reg.Lookup(participantID)
	if err != nil {
		return nil, err
	}
	o.syncIndex(ctx, sess, thread)
	return o.builder.Build(ctx, reg, p, thread, sess.index)
}

// runRound is called with the turn lock held.
func (o *Orchestrator) runRound(ctx context.Context, sess *Session, reg *personality.Registry, schedule *Schedule, kind string, input *types.Message) ([]types.Message, error) {
	start := time.Now()
	threadID := sess.ThreadID()
	roundID := o.newID()

	ctx, span := telemetry.StartSpan(ctx, "conversation.round",
		attribute.String("round.kind", kind),
		attribute.String("round.id", roundID),
		attribute.String("thread.id", threadID),
		attribute.Int("round.participants", len(schedule.Turns)),
		attribute.Bool("round.directed", schedule.Directed),
	)
	ctx = types.WithRoundID(types.WithThreadID(ctx, threadID), roundID)
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess.mu.Lock()
	sess.cancel = cancel
	sess.followUp = ""
	sess.mu.Unlock()
	o.transition(sess, StateDispatching)

	var committed []types.Message
	if input != nil {
		committed = append(committed, o.commit(sess, *input))
	}
	out, roundErr := o.dispatchTurns(roundCtx, sess, reg, schedule)
	committed = append(committed, out...)

	sess.mu.Lock()
	sess.cancel = nil
	sess.mu.Unlock()

	if roundErr == nil {
		if len(out) > 0 {
			if p, ok := o.scheduler.FollowUp(reg, out[len(out)-1]); ok {
				sess.mu.Lock()
				sess.followUp = p.ID
				sess.mu.Unlock()
			}
		}
		if o.cfg.AutoTopic {
			if th := sess.Thread(); th.Topic == "" && hasAgentMessage(th) {
				if _, err := o.generateTopic(roundCtx, sess, reg); err != nil {
					o.logger.Warn("topic generation failed", zap.String("thread_id", threadID), zap.Error(err))
				}
			}
		}
	}

	// Committed messages are persisted even when the round was cancelled.
	saveErr := o.save(context.WithoutCancel(ctx), sess.Thread())
	o.transition(sess, StateActive)

	err := roundErr
	if err == nil {
		err = saveErr
	}
	outcome := "completed"
	switch {
	case roundErr != nil:
		outcome = "cancelled"
	case saveErr != nil:
		outcome = "persistence_error"
	}
	o.recorder.RecordRound(kind, outcome, len(schedule.Turns), time.Since(start))
	telemetry.EndSpan(span, err)
	o.logger.Debug("round finished",
		zap.String("thread_id", threadID),
		zap.String("round_id", roundID),
		zap.String("kind", kind),
		zap.String("outcome", outcome),
		zap.Int("committed", len(committed)),
		zap.Duration("duration", time.Since(start)))
	return committed, err
}

type turnResult struct {
	msg       types.Message
	cancelled bool
}

// dispatchTurns runs the turns of schedule with at most MaxInFlight calls
// outstanding and commits their results strictly in schedule order. A turn
// is launched with the thread as committed at launch time, so with
// MaxInFlight 1 every participant sees the replies before it.
func (o *Orchestrator) dispatchTurns(ctx context.Context, sess *Session, reg *personality.Registry, schedule *Schedule) ([]types.Message, error) {
	turns := schedule.Turns
	limit := o.cfg.MaxInFlight
	results := make([]chan turnResult, len(turns))
	for i := range results {
		results[i] = make(chan turnResult, 1)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	defer func() { _ = g.Wait() }()

	launched := 0
	launch := func() {
		i := launched
		launched++
		snapshot := sess.Thread()
		o.syncIndex(ctx, sess, snapshot)
		g.Go(func() error {
			results[i] <- o.runTurn(ctx, sess, reg, turns[i], snapshot)
			return nil
		})
	}

	out := make([]types.Message, 0, len(turns))
	for i := range turns {
		for launched < len(turns) && launched < i+limit {
			launch()
		}
		select {
		case res := <-results[i]:
			if res.cancelled || ctx.Err() != nil {
				return out, cancelled(ctx)
			}
			out = append(out, o.commit(sess, res.msg))
		case <-ctx.Done():
			return out, cancelled(ctx)
		}
	}
	return out, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *Session, reg *personality.Registry, turn Turn, thread *types.Thread) turnResult {
	p := turn.Personality
	if turn.Err != nil {
		return turnResult{msg: failureDivider(p, turn.Err)}
	}
	ctx = types.WithParticipant(ctx, p.ID)

	prompt, err := o.builder.Build(ctx, reg, p, thread, sess.index)
	if err != nil {
		if ctx.Err() != nil {
			return turnResult{cancelled: true}
		}
		o.logger.Warn("context build failed", zap.String("participant", p.Name), zap.Error(err))
		return turnResult{msg: failureDivider(p, err)}
	}
	o.recorder.RecordContext(len(prompt.Snippets), prompt.Evicted.History, prompt.Evicted.Snippets, boolToInt(prompt.Evicted.Stimulus))

	res, err := o.dispatcher.Dispatch(ctx, &llm.DispatchRequest{
		Participant: p.Name,
		ProviderID:  p.ProviderID,
		Model:       p.Model,
		System:      prompt.System,
		Prompt:      prompt.Text,
		MaxTokens:   o.cfg.MaxOutputTokens,
		OnPartial: func(text string) {
			o.listener.OnPartial(sess, types.Message{
				Sender:    p.Name,
				Body:      CleanResponse(text, p.Name),
				AIName:    p.ProviderID,
				Model:     p.Model,
				IsPartial: true,
				Timestamp: types.Now(),
			})
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return turnResult{cancelled: true}
		}
		return turnResult{msg: failureDivider(p, err)}
	}
	o.recorder.RecordTokens(res.Provider, res.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens)

	text := CleanResponse(res.Text, p.Name)
	if text == "" {
		return turnResult{msg: failureDivider(p, types.Errorf(types.ErrEmptyResponse, "%s returned no text", p.Name))}
	}
	return turnResult{msg: types.NewAgentMessage(p.Name, text, res.Provider, res.Model)}
}

// failureDivider is the divider committed in place of a failed turn.
func failureDivider(p personality.Personality, err error) types.Message {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrProvider
	}
	return types.NewDividerMessage(fmt.Sprintf("%s is not available at the moment. (%s)", p.Name, code))
}

func cancelled(ctx context.Context) error {
	return types.NewError(types.ErrRoundCancelled, "round cancelled").WithCause(context.Cause(ctx))
}

func (o *Orchestrator) commit(sess *Session, msg types.Message) types.Message {
	msg = sess.appendMessage(msg)
	o.listener.OnCommit(sess, msg)
	return msg
}

func (o *Orchestrator) syncIndex(ctx context.Context, sess *Session, thread *types.Thread) {
	if sess.index == nil || thread == nil {
		return
	}
	if err := sess.index.Sync(ctx, thread); err != nil && ctx.Err() == nil {
		o.logger.Warn("retrieval index sync failed", zap.String("thread_id", thread.ID), zap.Error(err))
	}
}

func (o *Orchestrator) transition(sess *Session, to State) {
	sess.mu.Lock()
	from := sess.state
	sess.state = to
	sess.mu.Unlock()
	if from == to {
		return
	}
	o.recorder.RecordStateTransition(from.String(), to.String())
	o.listener.OnStateChange(sess, from, to)
}

// =============================================================================
// 💾 Persistence
// =============================================================================

func (o *Orchestrator) save(ctx context.Context, thread *types.Thread) error {
	if thread == nil {
		return nil
	}
	start := time.Now()
	err := o.store.Save(ctx, thread)
	o.recorder.RecordStoreOperation("save", err, time.Since(start))
	if err != nil {
		o.logger.Error("save thread failed", zap.String("thread_id", thread.ID), zap.Error(err))
		return types.Errorf(types.ErrPersistence, "save thread %q", thread.ID).WithCause(err)
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, id string) (*types.Thread, error) {
	start := time.Now()
	thread, err := o.store.Load(ctx, id)
	o.recorder.RecordStoreOperation("load", err, time.Since(start))
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return nil, types.Errorf(types.ErrThreadNotFound, "thread %q not found", id).WithCause(err)
	case err != nil:
		return nil, types.Errorf(types.ErrPersistence, "load thread %q", id).WithCause(err)
	}
	return thread, nil
}

func hasAgentMessage(thread *types.Thread) bool {
	_, ok := thread.LastAgentMessage()
	return ok
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
