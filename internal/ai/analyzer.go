// Package ai provides an optional LLM-backed analysis of mitigation
// summaries for alert emails.
package ai

import (
	"context"
	"fmt"

	"NetSentinel/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

const analysisPrompt = `You are a network security analyst. The following IP
addresses were blocked by an automated DDoS mitigation pipeline. Summarize
the likely attack pattern and recommend operator follow-up. Answer in
markdown.

%s`

// Analyzer asks an OpenAI-compatible endpoint to interpret block summaries.
type Analyzer struct {
	cfg    config.AIConfig
	client *openai.Client
}

// NewAnalyzer creates an Analyzer from the configured credentials.
func NewAnalyzer(cfg config.AIConfig) (*Analyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Analyzer{cfg: cfg, client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Analyze returns a markdown analysis of the given block summary.
func (a *Analyzer) Analyze(ctx context.Context, summary string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.cfg.Model,
		MaxTokens: 1024,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(analysisPrompt, summary),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("AI analysis call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("AI analysis returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
