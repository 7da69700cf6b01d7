package chat

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// PromptTemplate is the instruction sent to the model. {context} and
// {question} are substituted at request time.
const PromptTemplate = `You are a pharmacy assistant chatbot. You can:
1. Provide information about medications, including their uses and prices, but only based on the available data provided.
2. Suggest over-the-counter medications for common symptoms, like headaches or allergies, only if relevant information is found in the provided context.
3. Check the availability of products in the pharmacy's inventory. If the information is not available in the context, reply with 'It's not available right now.'
4. Do not generate any information that is not directly provided in the available data. If the context does not contain the answer, respond with 'I don't have that information right now.'

The available information is: {context}

The question is: {question}`

// promptBuilder renders the template with eino's FString formatter.
type promptBuilder struct {
	tpl prompt.ChatTemplate
}

func newPromptBuilder(template string) *promptBuilder {
	return &promptBuilder{
		tpl: prompt.FromMessages(schema.FString, schema.UserMessage(template)),
	}
}

func (p *promptBuilder) build(ctx context.Context, contextText, question string) (string, error) {
	msgs, err := p.tpl.Format(ctx, map[string]any{
		"context":  contextText,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("chat: format prompt: %w", err)
	}
	if len(msgs) != 1 {
		return "", fmt.Errorf("chat: format prompt: expected 1 message, got %d", len(msgs))
	}
	return msgs[0].Content, nil
}
