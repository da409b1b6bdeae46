package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/serenity/serenity/analysis"
	"github.com/ZanzyTHEbar/serenity/serenity/generation"
	ports "github.com/ZanzyTHEbar/serenity/serenity/generation/harness/ports"
	"github.com/ZanzyTHEbar/serenity/serenity/memory"
	"github.com/ZanzyTHEbar/serenity/serenity/routing"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Generator produces a reply for a rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Stage names the orchestrator state a turn is in.
type Stage string

const (
	StageCrisisCheck  Stage = "crisis_check"
	StageClassify     Stage = "classify"
	StageHistoryRead  Stage = "history_read"
	StagePrompt       Stage = "prompt"
	StageGenerate     Stage = "generate"
	StageRoute        Stage = "route"
	StageHistoryWrite Stage = "history_write"
)

// backgroundTimeout bounds archive writes and escalations that outlive the request.
const backgroundTimeout = 10 * time.Second

// Orchestrator drives one message through crisis check, classification,
// history, prompt, generation and routing. ProcessTurn never fails: every
// error ends in a supportive fallback reply.
type Orchestrator struct {
	analyzer  *analysis.Analyzer
	history   *memory.HistoryStore
	builder   *PromptBuilder
	generator Generator

	archive   ports.HistoryArchive
	escalator ports.Escalator
	tracer    ports.Tracer
	logger    zerolog.Logger

	contactPath string
	maxTokens   int

	background conc.WaitGroup

	// tail of each identity's pending archive writes; a new write waits on it
	persistMu    sync.Mutex
	persistTails map[string]chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithArchive(a ports.HistoryArchive) Option { return func(o *Orchestrator) { o.archive = a } }

func WithEscalator(e ports.Escalator) Option { return func(o *Orchestrator) { o.escalator = e } }

func WithTracer(t ports.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithAnalyzer(a *analysis.Analyzer) Option { return func(o *Orchestrator) { o.analyzer = a } }

// WithContactPath sets the support path returned on crisis turns.
func WithContactPath(p string) Option { return func(o *Orchestrator) { o.contactPath = p } }

// WithMaxTokens caps generated tokens; zero leaves the generator default.
func WithMaxTokens(n int) Option { return func(o *Orchestrator) { o.maxTokens = n } }

// NewOrchestrator wires the pipeline. Unset collaborators default to no-ops.
func NewOrchestrator(history *memory.HistoryStore, builder *PromptBuilder, generator Generator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		analyzer:    analysis.NewAnalyzer(),
		history:     history,
		builder:     builder,
		generator:   generator,
		escalator:   &noOpEscalator{},
		tracer:      &noOpTracer{},
		logger:      zerolog.Nop(),
		contactPath: "/care/contact",

		persistTails: make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.history == nil {
		o.history = memory.NewHistoryStore(memory.DefaultMaxTurns)
	}
	if o.builder == nil {
		o.builder = NewPromptBuilder(DefaultPromptWindow)
	}
	return o
}

// History exposes the in-memory store.
func (o *Orchestrator) History() *memory.HistoryStore { return o.history }

// ProcessTurn handles one message for identity. An empty identity is served
// without reading or writing history.
func (o *Orchestrator) ProcessTurn(ctx context.Context, message, identity string) (result TurnResult) {
	ctx, finish := o.tracer.StartSpan(ctx, "process_turn", map[string]any{"identity": identity})
	defer func() { finish(result.Degraded) }()

	stage := StageCrisisCheck
	var pc panics.Catcher
	pc.Try(func() {
		result = o.run(ctx, message, identity, &stage)
	})
	if r := pc.Recovered(); r != nil {
		err := fmt.Errorf("%w: panic in %s: %w", stageError(stage), stage, r.AsError())
		o.logger.Error().Err(err).Str("identity", identity).Str("stack", string(r.Stack)).Msg("turn pipeline panicked")
		return FallbackResult(err)
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, message, identity string, stage *Stage) TurnResult {
	if o.analyzer.Crisis.Detect(message) {
		return o.crisisExit(ctx, message, identity)
	}

	*stage = StageClassify
	emotion := o.analyzer.Emotion.Classify(message)
	sentiment := o.analyzer.Sentiment.Classify(message)
	o.tracer.Event(ctx, "classified", map[string]any{
		"emotion":   emotion.Emotion,
		"score":     emotion.Score,
		"sentiment": sentiment.Label,
	})

	*stage = StageHistoryRead
	var turns []memory.Turn
	if identity != "" {
		unlock := o.history.Lock(identity)
		defer unlock()
		o.hydrate(ctx, identity)
		turns = o.history.Read(identity)
	}
	turns = append(turns, memory.Turn{Role: memory.RoleUser, Content: message})

	*stage = StagePrompt
	prompt, err := o.builder.Build(turns, emotion.Emotion, sentiment.Label)
	if err != nil {
		o.logger.Error().Err(err).Msg("prompt build failed")
		return FallbackResult(fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err))
	}

	*stage = StageGenerate
	reply, genErr := o.generator.Generate(ctx, prompt, o.maxTokens)
	if genErr != nil {
		reply = generation.FallbackReply(genErr)
		o.logger.Warn().Err(genErr).Str("identity", identity).Msg("generation degraded to fallback reply")
		o.tracer.Event(ctx, "generation_fallback", map[string]any{"error": genErr.Error()})
	}

	*stage = StageRoute
	redirect := routing.Route(emotion.Emotion)

	*stage = StageHistoryWrite
	if identity != "" {
		o.history.Append(identity, message, reply)
		o.logger.Debug().Str("identity", identity).Int("turns", o.history.Len(identity)).Msg("history updated")
		if genErr == nil {
			o.persist(ctx, identity, message, reply)
		}
	}

	return TurnResult{
		Reply:     reply,
		Emotion:   emotion,
		Sentiment: sentiment,
		Redirect:  redirect,
		Degraded:  genErr,
	}
}

func (o *Orchestrator) crisisExit(ctx context.Context, message, identity string) TurnResult {
	o.logger.Warn().Str("identity", identity).Msg("crisis message detected")
	o.tracer.Event(ctx, "crisis_detected", map[string]any{"identity": identity})

	bg := context.WithoutCancel(ctx)
	o.background.Go(func() {
		ctx, cancel := context.WithTimeout(bg, backgroundTimeout)
		defer cancel()
		if err := o.escalator.Notify(ctx, identity, message); err != nil {
			o.logger.Error().Err(err).Str("identity", identity).Msg("crisis escalation failed")
		}
	})
	return crisisResult(o.contactPath)
}

func (o *Orchestrator) hydrate(ctx context.Context, identity string) {
	if o.archive == nil {
		return
	}
	err := o.history.Hydrate(ctx, identity, func(ctx context.Context) ([]memory.Turn, error) {
		return o.archive.LoadRecent(ctx, identity, o.history.MaxTurns())
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("identity", identity).Msg("history hydrate failed")
	}
}

// persist archives the exchange in the background. Writes for one identity
// run in the order they were queued; different identities run concurrently.
func (o *Orchestrator) persist(ctx context.Context, identity, user, assistant string) {
	if o.archive == nil {
		return
	}

	o.persistMu.Lock()
	prev := o.persistTails[identity]
	done := make(chan struct{})
	o.persistTails[identity] = done
	o.persistMu.Unlock()

	bg := context.WithoutCancel(ctx)
	o.background.Go(func() {
		defer func() {
			close(done)
			o.persistMu.Lock()
			if o.persistTails[identity] == done {
				delete(o.persistTails, identity)
			}
			o.persistMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}

		ctx, cancel := context.WithTimeout(bg, backgroundTimeout)
		defer cancel()
		err := o.archive.Persist(ctx, identity,
			memory.Turn{Role: memory.RoleUser, Content: user},
			memory.Turn{Role: memory.RoleAssistant, Content: assistant},
		)
		if err != nil {
			o.logger.Warn().Err(err).Str("identity", identity).Msg("history persist failed")
		}
	})
}

// Close waits for background persistence and escalation to finish.
func (o *Orchestrator) Close() {
	if r := o.background.WaitAndRecover(); r != nil {
		o.logger.Error().Interface("panic", r.Value).Msg("background task panicked")
	}
}

func stageError(s Stage) error {
	switch s {
	case StageCrisisCheck, StageClassify:
		return generation.ErrClassification
	default:
		return generation.ErrGenerationFailed
	}
}
