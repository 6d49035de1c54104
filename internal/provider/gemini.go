package provider

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	genai "google.golang.org/genai"
)

var ErrEmptyResponse = errors.New("provider: empty response from model")

// Gemini is a synchronous text provider for language-model nodes, a thin
// wrapper around the official genai client. It never returns a task id;
// Submit carries the generated text directly.
type Gemini struct {
	cli   *genai.Client
	model string
}

func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Gemini{cli: cli, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Submit(ctx context.Context, input map[string]any) (SubmitResult, error) {
	prompt := promptFrom(input)
	log.Printf("gemini request (%s): %d bytes", g.model, len(prompt))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
			&genai.GenerateContentConfig{},
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
			len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrEmptyResponse
		} else {
			return SubmitResult{ResultText: resp.Candidates[0].Content.Parts[0].Text}, nil
		}
		select {
		case <-ctx.Done():
			return SubmitResult{}, ctx.Err()
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		}
	}
	return SubmitResult{}, &TransientError{Err: lastErr}
}

// Poll is never reached for a synchronous provider.
func (g *Gemini) Poll(ctx context.Context, taskID string) (PollResult, error) {
	return PollResult{}, &ProviderError{Message: "gemini: no async tasks"}
}

// promptFrom concatenates the node's resolved prompt and input text.
func promptFrom(input map[string]any) string {
	var parts []string
	for _, key := range []string{"prompt", "inputText", "text"} {
		if s, _ := input[key].(string); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
