package llm

import (
	"context"

	"museum-api-verifier/internal/types"
)

// Client defines the interface for LLM interactions
type Client interface {
	// Triage summarizes failed cases into likely causes, grouped by endpoint
	// family. It is advisory and never changes an outcome.
	Triage(ctx context.Context, failures []types.VerificationResult) (string, error)
}

// completer sends one prompt and returns the model's text
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
}

// failureDigest is the compact form of a failure sent to the model. Bodies
// are left out to save tokens.
type failureDigest struct {
	Case     string   `json:"case"`
	Family   string   `json:"family"`
	Request  string   `json:"request"`
	Status   int      `json:"status,omitempty"`
	Outcome  string   `json:"outcome"`
	Findings []string `json:"findings,omitempty"`
	Error    string   `json:"error,omitempty"`
}
