package scorer

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI scores content through any OpenAI-compatible chat completion
// endpoint (including local servers such as Ollama). Text is sent
// directly and images as data-URL parts; the chat API has no inline
// audio or video support, so those return ErrUnsupportedContent.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates an OpenAI-compatible scorer.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

func (o *OpenAI) Score(ctx context.Context, prompt string, content Content) (string, error) {
	msg, err := buildChatMessage(prompt, content)
	if err != nil {
		return "", err
	}

	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	verdict := strings.TrimSpace(resp.Choices[0].Message.Content)
	if verdict == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return verdict, nil
}

func buildChatMessage(prompt string, content Content) (openai.ChatCompletionMessage, error) {
	if content.Data == nil {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt + content.Text,
		}, nil
	}

	if !strings.HasPrefix(content.MIMEType, "image/") {
		return openai.ChatCompletionMessage{},
			fmt.Errorf("%w: %s", ErrUnsupportedContent, content.MIMEType)
	}

	dataURL := "data:" + content.MIMEType + ";base64," +
		base64.StdEncoding.EncodeToString(content.Data)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
		},
	}, nil
}
