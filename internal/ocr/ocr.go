// Package ocr extracts the text of an uploaded image so it can be asked as a
// question. Extraction is delegated to a vision-capable chat model.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrUnsupportedImage is returned for payloads that are not a recognised
// image format.
var ErrUnsupportedImage = errors.New("ocr: unsupported image format")

// Extractor returns the text found in an encoded image. An image without
// text yields an empty string and a nil error.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

const instruction = "Transcribe all text visible in this image exactly as written. " +
	"Reply with the transcribed text only. If the image contains no text, reply with nothing."

// VisionExtractor implements Extractor with a multimodal chat model.
type VisionExtractor struct {
	model model.BaseChatModel
}

// NewVisionExtractor wraps m, which must accept image inputs.
func NewVisionExtractor(m model.BaseChatModel) *VisionExtractor {
	return &VisionExtractor{model: m}
}

// ExtractText sends image to the model as a data URL and returns the
// trimmed transcription.
func (v *VisionExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUnsupportedImage)
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedImage, mime)
	}

	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: instruction},
			{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: url, Detail: schema.ImageURLDetailAuto},
			},
		},
	}

	out, err := v.model.Generate(ctx, []*schema.Message{msg})
	if err != nil {
		return "", fmt.Errorf("ocr: vision model: %w", err)
	}
	if out == nil {
		return "", nil
	}
	return strings.TrimSpace(out.Content), nil
}
