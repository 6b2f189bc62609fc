// Package scorer wraps the external generative-AI authenticity
// classifier. The model is treated as an opaque, unreliable remote
// function: input is an instruction prompt plus typed content, output
// is a free-text verdict stored verbatim.
package scorer

import (
	"context"
	"errors"
)

// ErrUnsupportedContent is returned by backends that cannot accept the
// given content type (e.g. audio through an OpenAI-compatible chat API).
var ErrUnsupportedContent = errors.New("content type not supported by this scorer backend")

// Content is the answer payload sent alongside a prompt. Exactly one of
// Text or Data is set; Data carries a declared media type.
type Content struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Scorer is the external classifier interface. Implementations may
// block for seconds and fail transiently; callers must not hold
// per-candidate locks across a Score call.
type Scorer interface {
	Score(ctx context.Context, prompt string, content Content) (string, error)
}

// Func adapts a function to the Scorer interface, mostly for tests.
type Func func(ctx context.Context, prompt string, content Content) (string, error)

func (f Func) Score(ctx context.Context, prompt string, content Content) (string, error) {
	return f(ctx, prompt, content)
}
