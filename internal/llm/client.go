package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"museum-api-verifier/internal/types"
)

// ErrNothingToTriage is returned when there are no failures to summarize
var ErrNothingToTriage = errors.New("no failures to triage")

// BaseClient provides the prompt handling shared by every provider
type BaseClient struct {
	config    *Config
	logger    *zap.Logger
	completer completer
}

// NewBaseClient creates a new base LLM client around a provider
func NewBaseClient(config *Config, logger *zap.Logger, c completer) *BaseClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseClient{
		config:    config,
		logger:    logger,
		completer: c,
	}
}

// Triage implements the Client interface
func (c *BaseClient) Triage(ctx context.Context, failures []types.VerificationResult) (string, error) {
	if len(failures) == 0 {
		return "", ErrNothingToTriage
	}

	prompt, err := c.buildPrompt(failures)
	if err != nil {
		return "", err
	}

	response, err := c.callLLM(ctx, prompt)
	if err != nil {
		c.logger.Warn("llm triage failed", zap.Int("failures", len(failures)), zap.Error(err))
		return "", fmt.Errorf("failed to triage failures: %w", err)
	}

	summary := strings.TrimSpace(response)
	c.logger.Info("llm triage complete",
		zap.Int("failures", len(failures)),
		zap.Int("summary_bytes", len(summary)),
	)
	return summary, nil
}

func (c *BaseClient) buildPrompt(failures []types.VerificationResult) (string, error) {
	limit := c.config.MaxFailures
	if limit <= 0 || limit > len(failures) {
		limit = len(failures)
	}

	digests := make([]failureDigest, 0, limit)
	for _, f := range failures[:limit] {
		d := failureDigest{
			Case:    f.Case,
			Family:  string(f.Family),
			Request: f.Path,
			Status:  f.StatusCode,
			Outcome: string(f.Outcome),
			Error:   f.Error,
		}
		if f.Params != "" {
			d.Request += "?" + f.Params
		}
		for _, finding := range f.Findings {
			d.Findings = append(d.Findings, finding.Rule+": "+finding.Detail)
		}
		digests = append(digests, d)
	}

	// Remove indentation to save tokens
	data, err := json.Marshal(digests)
	if err != nil {
		return "", fmt.Errorf("failed to encode failures: %w", err)
	}

	prompt := fmt.Sprintf(`The following contract checks against a museum collection HTTP API failed (%d shown of %d):
%s

Group them by endpoint family and by likely cause. Distinguish API contract regressions from network or infrastructure problems.
Respond in plain text, at most ten short lines.`,
		limit, len(failures), string(data))
	return prompt, nil
}

// callLLM handles the LLM API call for the configured provider
func (c *BaseClient) callLLM(ctx context.Context, prompt string) (string, error) {
	if c.completer == nil {
		return "", errors.New("no LLM provider configured")
	}
	return c.completer.complete(ctx, prompt)
}
