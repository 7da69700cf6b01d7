package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/pharmabot/internal/budget"
	"github.com/54b3r/pharmabot/internal/fusion"
	"github.com/54b3r/pharmabot/internal/logging"
	"github.com/54b3r/pharmabot/internal/rag"
)

// Config wires the orchestrator's collaborators and tuning.
type Config struct {
	// Retrievers produce the ranked lists that are fused. At least one is
	// required; the vector retriever comes first, an optional lexical one
	// second.
	Retrievers []rag.Retriever

	// History reads and appends conversation turns. Required.
	History HistoryStore

	// Completer generates the answer. Required.
	Completer Completer

	// Sessions resolves the session when Input.SessionID is empty. Optional;
	// without it requests must carry a session ID.
	Sessions SessionStore

	// OCR extracts the question from image input. Optional; image input is
	// rejected with the extraction message when nil.
	OCR TextExtractor

	// Observer is notified of every stage outcome. Optional.
	Observer StageObserver

	// TopK is the number of chunks requested from each retriever (default 4).
	TopK int

	// FusionK is the reciprocal rank fusion constant (default 60).
	FusionK float64

	// TopN is the number of fused chunks kept (default 3).
	TopN int

	// MaxContextTokens bounds the estimated prompt size. Oldest history turns
	// are dropped to fit. Zero uses budget.DefaultMaxContextTokens; negative
	// disables trimming.
	MaxContextTokens int

	// Template overrides PromptTemplate.
	Template string
}

// Orchestrator runs the answer pipeline. It holds no per-request state and
// is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	prompt *promptBuilder
}

// New validates cfg, applies defaults and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Retrievers) == 0 {
		return nil, fmt.Errorf("chat: %w: at least one retriever is required", rag.ErrConfig)
	}
	for i, r := range cfg.Retrievers {
		if r == nil {
			return nil, fmt.Errorf("chat: %w: retriever %d is nil", rag.ErrConfig, i)
		}
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("chat: %w: history store is required", rag.ErrConfig)
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("chat: %w: completer is required", rag.ErrConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	if cfg.FusionK <= 0 {
		cfg.FusionK = fusion.DefaultK
	}
	if cfg.TopN <= 0 {
		cfg.TopN = fusion.DefaultTopN
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.Template == "" {
		cfg.Template = PromptTemplate
	}
	return &Orchestrator{cfg: cfg, prompt: newPromptBuilder(cfg.Template)}, nil
}

// Answer resolves the question and session, then runs the pipeline stages in
// order, stopping at the first failure. It never returns an error: every
// outcome is described by the Result.
func (o *Orchestrator) Answer(ctx context.Context, in Input) Result {
	log := logging.FromContext(ctx).With(slog.String("user_id", in.UserID))

	if strings.TrimSpace(in.UserID) == "" {
		return Result{Reply: MessageNoUser, Status: StatusRejected}
	}

	sessionID := in.SessionID
	if sessionID == "" {
		if o.cfg.Sessions == nil {
			return o.failed(ctx, log, Result{}, StageResolveSession,
				fmt.Errorf("chat: %w: no session id and no session store", rag.ErrConfig))
		}
		id, err := o.cfg.Sessions.Resolve(ctx, in.UserID)
		o.observe(StageResolveSession, err)
		if err != nil {
			return o.failed(ctx, log, Result{}, StageResolveSession, err)
		}
		sessionID = id
	}
	log = log.With(slog.String("session_id", sessionID))
	res := Result{SessionID: sessionID}

	question := in.Question
	if in.IsImage {
		if o.cfg.OCR == nil {
			return o.failed(ctx, log, res, StageExtractText,
				fmt.Errorf("chat: %w: image input without a text extractor", rag.ErrConfig))
		}
		text, err := o.cfg.OCR.ExtractText(ctx, in.Image)
		o.observe(StageExtractText, err)
		if err != nil {
			return o.failed(ctx, log, res, StageExtractText, err)
		}
		question = text
		if strings.TrimSpace(question) == "" {
			log.Info("chat: image contained no text")
			res.Reply, res.Status = MessageNoQuestionImage, StatusRejected
			return res
		}
	}
	if strings.TrimSpace(question) == "" {
		res.Reply, res.Status = MessageNoQuestion, StatusRejected
		return res
	}
	res.Question = question

	r := &run{
		o:         o,
		log:       log,
		userID:    in.UserID,
		sessionID: sessionID,
		question:  question,
	}
	for _, st := range r.steps() {
		if err := ctx.Err(); err != nil {
			o.observe(st.stage, err)
			return o.failed(ctx, log, res, st.stage, err)
		}
		out := st.fn(ctx)
		o.observe(st.stage, out.err)
		if !out.ok {
			if st.stage == StagePersist {
				res.Answer = r.answer
				return o.notSaved(log, res, out.err)
			}
			return o.failed(ctx, log, res, st.stage, out.err)
		}
		log.Debug("chat: stage complete", slog.String("stage", string(st.stage)))
	}

	res.Reply, res.Answer, res.Status = r.answer, r.answer, StatusOK
	log.Info("chat: answered",
		slog.Int("question_len", len(question)),
		slog.Int("answer_len", len(r.answer)),
		slog.Int("history_turns", len(r.history)),
		slog.Int("fused_chunks", len(r.fused)),
	)
	return res
}

func (o *Orchestrator) observe(stage Stage, err error) {
	if o.cfg.Observer != nil {
		o.cfg.Observer.ObserveStage(stage, err)
	}
}

// failed converts a stage failure into a Result.
func (o *Orchestrator) failed(ctx context.Context, log *slog.Logger, res Result, stage Stage, err error) Result {
	level := slog.LevelWarn
	if errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	log.Log(ctx, level, "chat: stage failed",
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()),
	)
	res.Reply = FailureMessage(stage)
	res.Status = StatusFailed
	res.Stage = stage
	res.Err = err
	return res
}

func (o *Orchestrator) notSaved(log *slog.Logger, res Result, err error) Result {
	log.Warn("chat: answer produced but not saved",
		slog.String("stage", string(StagePersist)),
		slog.String("error", err.Error()),
	)
	res.Reply = FailureMessage(StagePersist)
	res.Status = StatusAnswerNotSaved
	res.Stage = StagePersist
	res.Err = err
	return res
}
