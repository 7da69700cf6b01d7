package chat

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/pharmabot/internal/budget"
	"github.com/54b3r/pharmabot/internal/fusion"
	"github.com/54b3r/pharmabot/internal/rag"
	"github.com/54b3r/pharmabot/internal/store"
)

// stageResult is the tagged outcome of one stage.
type stageResult struct {
	ok  bool
	err error
}

func success() stageResult { return stageResult{ok: true} }

func failure(err error) stageResult { return stageResult{err: err} }

type step struct {
	stage Stage
	fn    func(ctx context.Context) stageResult
}

// run carries the state of one request through the stages. Each stage reads
// what earlier stages produced and records its own output.
type run struct {
	o         *Orchestrator
	log       *slog.Logger
	userID    string
	sessionID string
	question  string

	history     []store.Turn
	lists       [][]rag.Chunk
	fused       []fusion.Result
	contextText string
	prompt      string
	answer      string
}

func (r *run) steps() []step {
	return []step{
		{StageRetrieveHistory, r.retrieveHistory},
		{StageRetrieveDocument, r.retrieveDocuments},
		{StageFuse, r.fuse},
		{StageAssembleContext, r.assembleContext},
		{StageBuildPrompt, r.buildPrompt},
		{StageComplete, r.complete},
		{StagePersist, r.persist},
	}
}

func (r *run) retrieveHistory(ctx context.Context) stageResult {
	h, err := r.o.cfg.History.History(ctx, r.userID)
	if err != nil {
		return failure(fmt.Errorf("chat: %w: load history: %w", rag.ErrPersistence, err))
	}
	r.history = h
	return success()
}

// retrieveDocuments queries every retriever concurrently. Lists keep the
// retriever order so fusion stays deterministic.
func (r *run) retrieveDocuments(ctx context.Context) stageResult {
	lists := make([][]rag.Chunk, len(r.o.cfg.Retrievers))
	g, gctx := errgroup.WithContext(ctx)
	for i, ret := range r.o.cfg.Retrievers {
		g.Go(func() error {
			chunks, err := ret.Retrieve(gctx, r.question, r.o.cfg.TopK)
			if err != nil {
				return err
			}
			lists[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failure(fmt.Errorf("chat: %w: %w", rag.ErrRetrieval, err))
	}
	r.lists = lists
	return success()
}

func (r *run) fuse(_ context.Context) stageResult {
	fused, err := fusion.Fuse(r.lists, r.o.cfg.FusionK, r.o.cfg.TopN)
	if err != nil {
		return failure(err)
	}
	r.fused = fused
	return success()
}

// assembleContext trims the oldest history so the estimated prompt fits the
// token budget, then renders history and documents.
func (r *run) assembleContext(_ context.Context) stageResult {
	docs := Assemble(r.fused, nil)
	fixed := budget.Estimate(r.o.cfg.Template) + budget.Estimate(r.question) + budget.Estimate(docs)

	kept := budget.TrimOldest(r.history, fixed, r.o.cfg.MaxContextTokens, func(t store.Turn) int {
		return budget.EstimateTurn(t.Question, t.Answer)
	})
	if dropped := len(r.history) - len(kept); dropped > 0 {
		r.log.Info("chat: trimmed history to fit context budget",
			slog.Int("dropped_turns", dropped),
			slog.Int("kept_turns", len(kept)),
			slog.Int("max_context_tokens", r.o.cfg.MaxContextTokens),
		)
	}
	if len(kept) == 0 && fixed > r.o.cfg.MaxContextTokens && r.o.cfg.MaxContextTokens > 0 {
		r.log.Warn("chat: prompt exceeds context budget without history",
			slog.Int("estimated_tokens", fixed),
		)
	}

	r.contextText = Assemble(r.fused, kept)
	if r.contextText == "" {
		return failure(fmt.Errorf("chat: %w: empty context", rag.ErrAssembly))
	}
	return success()
}

func (r *run) buildPrompt(ctx context.Context) stageResult {
	p, err := r.o.prompt.build(ctx, r.contextText, r.question)
	if err != nil {
		return failure(err)
	}
	r.prompt = p
	return success()
}

func (r *run) complete(ctx context.Context) stageResult {
	answer, err := r.o.cfg.Completer.Complete(ctx, r.prompt)
	if err != nil {
		return failure(fmt.Errorf("chat: %w: %w", rag.ErrCompletion, err))
	}
	r.answer = answer
	return success()
}

func (r *run) persist(ctx context.Context) stageResult {
	err := r.o.cfg.History.Append(ctx, store.Turn{
		UserID:    r.userID,
		SessionID: r.sessionID,
		Question:  r.question,
		Answer:    r.answer,
	})
	if err != nil {
		return failure(fmt.Errorf("chat: %w: %w", rag.ErrPersistence, err))
	}
	return success()
}
