package requirements

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/JaimeStill/labelhub/internal/config"
)

// Completer sends one prompt to a model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type genaiCompleter struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewCompleter connects to the model backend named in cfg.
func NewCompleter(ctx context.Context, cfg *config.AgentConfig) (Completer, error) {
	cc := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	}
	if cfg.Backend == config.AgentBackendVertex {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Backend, err)
	}

	return &genaiCompleter{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.TimeoutDuration(),
	}, nil
}

func (c *genaiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := float32(0.2)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
