package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pharmabot/internal/rag"
)

// ModelCompleter turns a prompt into a model-generated answer by sending it
// to an eino chat model as a single user message.
type ModelCompleter struct {
	model model.BaseChatModel
}

// NewCompleter wraps m.
func NewCompleter(m model.BaseChatModel) *ModelCompleter {
	return &ModelCompleter{model: m}
}

// Complete sends prompt to the model and returns the reply content.
// Failures wrap rag.ErrCompletion. Globally registered callback handlers
// (Langfuse tracing) observe the call.
func (c *ModelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "pharmabot.complete",
		Type:      "ModelCompleter",
		Component: components.ComponentOfChatModel,
	})
	msg, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("provider: %w: %w", rag.ErrCompletion, err)
	}
	if msg == nil {
		return "", fmt.Errorf("provider: %w: model returned no message", rag.ErrCompletion)
	}
	return msg.Content, nil
}
