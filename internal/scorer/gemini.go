package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini scores content through the Google Generative AI API. It is
// the default backend: the only one that accepts all four modalities
// as inline blobs.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini scorer.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	temp := float32(0.3)
	model.Temperature = &temp

	return &Gemini{client: client, model: model}, nil
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Score sends the prompt and content to the model and returns the
// concatenated text of the first candidate response.
func (g *Gemini) Score(ctx context.Context, prompt string, content Content) (string, error) {
	var parts []genai.Part
	if content.Data != nil {
		parts = []genai.Part{
			genai.Text(prompt),
			genai.Blob{MIMEType: content.MIMEType, Data: content.Data},
		}
	} else {
		parts = []genai.Part{genai.Text(prompt + content.Text)}
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Gemini API call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("Gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	verdict := strings.TrimSpace(sb.String())
	if verdict == "" {
		return "", fmt.Errorf("Gemini returned no text parts")
	}

	slog.Debug("Gemini verdict", "raw", verdict)
	return verdict, nil
}
