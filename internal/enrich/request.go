package enrich

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"github.com/fpang/auction-catalog/internal/assets"
	"github.com/fpang/auction-catalog/internal/s3util"
)

// RequestBuilder turns one item's images into a chat completion request.
// The same request body is sent directly in synchronous mode and wrapped in
// a JSONL line in batch mode.
type RequestBuilder struct {
	Model        string
	MaxTokens    int
	ImageBaseURL string
}

// Build returns a single user message holding the appraisal instruction
// followed by one low-detail image part per key, in order.
func (b RequestBuilder) Build(keys []string, metadata map[string]any) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(keys)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: assets.RenderAppraisalPrompt(metadataContext(metadata)),
	})
	for _, key := range keys {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    s3util.PublicURL(b.ImageBaseURL, key),
				Detail: openai.ImageURLDetailLow,
			},
		})
	}
	return openai.ChatCompletionRequest{
		Model:     b.Model,
		MaxTokens: b.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}},
	}
}

func metadataContext(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(data)
}
