package ai

import "context"

// Runtime is implemented by text-generation backends such as a local Ollama.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used in configuration.
const (
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// GenerateRequest is a single non-streaming completion request.
type GenerateRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// GenerateResponse carries the generated text.
type GenerateResponse struct {
	Text      string
	Model     string
	Done      bool
	RequestID string
}
