package rag

import "errors"

// Failure classes shared by every stage of the pipeline. Errors are wrapped
// with fmt.Errorf so callers can classify them with errors.Is.
var (
	// ErrConfig reports invalid construction parameters (fatal at startup).
	ErrConfig = errors.New("invalid configuration")
	// ErrEmbedding reports a failure of the embedding backend.
	ErrEmbedding = errors.New("embedding failed")
	// ErrRetrieval reports a failure to retrieve candidate chunks.
	ErrRetrieval = errors.New("retrieval failed")
	// ErrFusion reports a failure while fusing ranked lists.
	ErrFusion = errors.New("fusion failed")
	// ErrAssembly reports a failure while assembling the prompt context.
	ErrAssembly = errors.New("context assembly failed")
	// ErrCompletion reports a failure of the completion service.
	ErrCompletion = errors.New("completion failed")
	// ErrPersistence reports a failure of the conversation store.
	ErrPersistence = errors.New("persistence failed")
)
