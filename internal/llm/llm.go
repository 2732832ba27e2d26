// Package llm wraps the generative-text collaborator used for planning and
// creative track generation behind the [Completer] interface.
//
// [OpenAIClient] talks to any OpenAI-compatible chat completions endpoint. Responses
// are free text; [ExtractJSON] and [ExtractJSONArray] pull the structured payload
// out of them, tolerating markdown fences, comments and trailing commas.
package llm

import "context"

// Request is a single chat completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature *float64 // nil uses the client default
	JSON        bool     // ask the model for a JSON object response
	MaxTokens   int
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model output for a [Request].
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Temperature returns a pointer for [Request.Temperature].
func Temperature(t float64) *float64 {
	return &t
}
