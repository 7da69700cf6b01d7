// Package chat answers a user's question from the indexed corpus. It runs a
// fixed sequence of stages (history, retrieval, fusion, context assembly,
// prompt, completion, persistence) and turns every outcome, including
// failures, into a Result carrying a user-facing reply.
package chat

import (
	"context"

	"github.com/54b3r/pharmabot/internal/store"
)

// Stage names one step of the answer pipeline.
type Stage string

// Pipeline stages in execution order, plus the pre-stage steps.
const (
	StageResolveSession   Stage = "resolve_session"
	StageExtractText      Stage = "extract_text"
	StageRetrieveHistory  Stage = "retrieve_history"
	StageRetrieveDocument Stage = "retrieve_documents"
	StageFuse             Stage = "fuse"
	StageAssembleContext  Stage = "assemble_context"
	StageBuildPrompt      Stage = "build_prompt"
	StageComplete         Stage = "complete"
	StagePersist          Stage = "persist"
)

// stageMessages maps each stage to the reply returned when it fails.
var stageMessages = map[Stage]string{
	StageResolveSession:   "Error starting chat session.",
	StageExtractText:      "Error reading text from the image.",
	StageRetrieveHistory:  "Error retrieving chat history.",
	StageRetrieveDocument: "Error retrieving relevant documents.",
	StageFuse:             "Error processing document ranking.",
	StageAssembleContext:  "Error preparing response context.",
	StageBuildPrompt:      "Error creating prompt.",
	StageComplete:         "Error generating response from language model.",
	StagePersist:          "Error saving chat history.",
}

// FailureMessage returns the user-facing reply for a failure at stage.
func FailureMessage(stage Stage) string {
	return stageMessages[stage]
}

// Replies for requests that never reach the pipeline.
const (
	MessageNoQuestion      = "No question provided."
	MessageNoQuestionImage = "No question provided in the image."
	MessageNoUser          = "User ID is required."
)

// Status classifies a Result.
type Status string

const (
	// StatusOK means the answer was produced and persisted.
	StatusOK Status = "ok"
	// StatusAnswerNotSaved means the answer was produced but persisting the
	// turn failed. Reply holds the persistence message and Answer the answer.
	StatusAnswerNotSaved Status = "answer_not_saved"
	// StatusFailed means a stage failed before an answer was produced.
	StatusFailed Status = "failed"
	// StatusRejected means the input carried no usable question.
	StatusRejected Status = "rejected"
)

// Input is one incoming request.
type Input struct {
	// UserID identifies the asking user. Required.
	UserID string
	// SessionID is the caller's session. When empty the session store
	// resolves (or creates) the user's session.
	SessionID string
	// Question is the text question. Ignored when IsImage is set.
	Question string
	// IsImage selects Image as the question source.
	IsImage bool
	// Image is an encoded image whose text is the question.
	Image []byte
}

// Result is the outcome of Answer. It is always populated; Answer never
// returns an error.
type Result struct {
	// SessionID is the session the turn belongs to.
	SessionID string
	// Question is the question that was answered (extracted text for images).
	Question string
	// Reply is the text to show the user: the answer on success, otherwise
	// the message of the failing stage.
	Reply string
	// Answer is the model's answer whenever completion succeeded, even if
	// persisting it failed.
	Answer string
	// Status classifies the outcome.
	Status Status
	// Stage is the failing stage, empty on success.
	Stage Stage
	// Err is the underlying cause of a failure.
	Err error
}

// HistoryStore is the persistence the orchestrator needs.
// store.SQLiteStore and store.PostgresStore satisfy it.
type HistoryStore interface {
	History(ctx context.Context, userID string) ([]store.Turn, error)
	Append(ctx context.Context, turn store.Turn) error
}

// Completer generates an answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TextExtractor reads the question out of an image.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// SessionStore resolves a user's session.
type SessionStore interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// StageObserver is notified after every stage runs. err is nil on success.
type StageObserver interface {
	ObserveStage(stage Stage, err error)
}
