package scorer

import (
	"strings"

	"github.com/pavelanni/screener/internal/model"
)

// Per-modality instruction prompts. The wording asks for a one-line
// verdict plus a short reason so verdicts stay concatenable for the
// final synthesis pass.
const (
	textPrompt = `You are an AI assistant helping recruiters.

Analyze the following answer and decide whether it is
more likely written by a Human or generated by AI.

Reply strictly:
Result: Human or AI
Reason: short explanation

Text:
`

	imagePrompt = `You are an AI forensic expert.

Analyze this image and decide whether it is a real photograph
or AI-generated.

Reply:
Result: AI or Real
Reason: one short sentence
`

	audioPrompt = `Analyze this audio and decide whether the voice is
a real human recording or AI-generated.

Reply:
Result: Human or AI
Reason: short explanation
`

	videoPrompt = `Analyze this video and decide whether it is
real footage or AI-generated.

Reply:
Result: Real or AI
Reason: short explanation
`
)

// PromptFor returns the instruction prompt for a modality.
func PromptFor(m model.Modality) string {
	switch m {
	case model.ModalityText:
		return textPrompt
	case model.ModalityImage:
		return imagePrompt
	case model.ModalityAudio:
		return audioPrompt
	case model.ModalityVideo:
		return videoPrompt
	}
	return ""
}

// BuildSynthesisPrompt builds the hiring-recommendation prompt from a
// candidate's verdicts in ledger order.
func BuildSynthesisPrompt(verdicts []string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert hiring evaluator.\n\n")
	sb.WriteString("Given the following AI analysis results from a candidate's test,\n")
	sb.WriteString("decide whether the candidate is likely:\n\n")
	sb.WriteString("- Genuine human candidate\n")
	sb.WriteString("- AI-assisted candidate\n")
	sb.WriteString("- Suspicious / unreliable\n\n")
	sb.WriteString("Also give:\n")
	sb.WriteString("1. Final decision: Accept / Review / Reject\n")
	sb.WriteString("2. Short reason (3-4 lines)\n\n")
	sb.WriteString("AI ANALYSIS RESULTS:\n")
	sb.WriteString(strings.Join(verdicts, "\n"))
	sb.WriteString("\n")
	return sb.String()
}
