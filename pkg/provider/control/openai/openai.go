// Package openai provides a control Completer backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/selene/pkg/provider/control"
)

// defaultTimeout bounds a single control completion. Control decisions gate
// the turn, so a slow model must fail fast rather than stall the dialog.
const defaultTimeout = 5 * time.Second

// Completer implements control.Completer using the OpenAI chat completions API.
type Completer struct {
	client oai.Client
	model  string
}

var _ control.Completer = (*Completer)(nil)

// config holds optional configuration for the completer.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Completer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point at
// any OpenAI-compatible control model server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout overrides the default 5 s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI-backed control Completer.
func New(apiKey, model string, opts ...Option) (*Completer, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Completer{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Complete implements control.Completer.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
