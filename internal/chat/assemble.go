package chat

import (
	"strings"

	"github.com/54b3r/pharmabot/internal/fusion"
	"github.com/54b3r/pharmabot/internal/store"
)

// NoDataMessage stands in for the documents when nothing relevant was found,
// so the prompt context is never empty.
const NoDataMessage = "No relevant data available."

// Assemble renders history followed by the fused chunk texts. History comes
// first as "User: ..." / "Assistant: ..." lines in the order given, skipping
// turns with an empty side, then a blank line, then one chunk text per line
// in fused order, skipping empty texts. When no chunk text remains the
// document part is NoDataMessage.
func Assemble(fused []fusion.Result, history []store.Turn) string {
	var docs []string
	for _, r := range fused {
		if r.Chunk.Text != "" {
			docs = append(docs, r.Chunk.Text)
		}
	}
	docPart := NoDataMessage
	if len(docs) > 0 {
		docPart = strings.Join(docs, "\n")
	}

	historyPart := renderHistory(history)
	if historyPart == "" {
		return docPart
	}
	return historyPart + "\n\n" + docPart
}

func renderHistory(history []store.Turn) string {
	var b strings.Builder
	for _, t := range history {
		if t.Question == "" || t.Answer == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
	}
	return b.String()
}
