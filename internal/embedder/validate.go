package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/pharmabot/internal/rag"
)

// knownChatModelPrefixes identify chat/completion models which are not
// suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "gemini-1", "gemini-2",
	"phi-", "phi3", "claude", "command-r", "deepseek", "qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForIndex checks that cfg can populate the chosen index backend.
// The local TF-IDF embedder is refitted on every start, so its vectors cannot
// be stored in a persistent Qdrant collection. A chat model named as the
// embedding model only produces a warning.
func ValidateForIndex(log *slog.Logger, cfg *Config, indexBackend string) error {
	if indexBackend == "qdrant" && cfg.Backend == BackendLocal {
		return fmt.Errorf("embedder: %w: the local embedder cannot feed a qdrant index, set EMBEDDING_PROVIDER to ollama, openai, azure or gemini", rag.ErrConfig)
	}

	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", cfg.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
