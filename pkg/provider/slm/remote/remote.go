// Package remote provides an slm.Provider speaking the OpenAI-compatible
// streaming chat-completions protocol, extended with the non-standard id and
// transcript fields on audio content parts. Typed SDK clients cannot carry
// those fields, so the wire client is written against net/http directly.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/selene/pkg/provider/diar"
	"github.com/MrWong99/selene/pkg/provider/slm"
)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPrompts sets the system instructions prepended to every request.
func WithPrompts(prompts []string) Option {
	return func(c *Client) {
		c.prompts = prompts
	}
}

// WithTextHistory substitutes transcripts for audio in historical user turns,
// trading speech nuance for a much smaller request.
func WithTextHistory(enabled bool) Option {
	return func(c *Client) {
		c.useTextHistory = enabled
	}
}

// WithMaxMessages caps how many history turns are sent; zero or negative
// sends everything.
func WithMaxMessages(n int) Option {
	return func(c *Client) {
		c.maxMessages = n
	}
}

// WithDiarization attaches a speaker attribution client. When set, each
// request first updates the speaker map with the new utterance and historical
// audio parts gain a "[speaker N] " text part in front.
func WithDiarization(d diar.Provider) Option {
	return func(c *Client) {
		c.diar = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. The default has no
// overall timeout since replies stream for many seconds; cancellation comes
// from ctx.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements slm.Provider against an OpenAI-compatible endpoint.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	prompts        []string
	useTextHistory bool
	maxMessages    int
	diar           diar.Provider
	httpClient     *http.Client
}

var _ slm.Provider = (*Client)(nil)

// New creates a Client for the given endpoint base URL and model.
func New(baseURL, model string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("slm: baseURL must not be empty")
	}
	if model == "" {
		return nil, errors.New("slm: model must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     "token",
		model:      model,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// completionRequest is the JSON request body.
type completionRequest struct {
	Model    string        `json:"model"`
	Messages []slm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
}

// completionChunk is one SSE data payload of the streamed reply.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream implements slm.Provider.
func (c *Client) Stream(ctx context.Context, history []slm.Message, utterance []byte) (<-chan string, error) {
	var speakers diar.Speakers
	if c.diar != nil {
		var err error
		speakers, err = c.diar.Attribute(ctx, utterance)
		if err != nil {
			return nil, fmt.Errorf("slm: diarize: %w", err)
		}
	}

	messages := c.buildMessages(history, speakers)
	messages = append(messages, slm.NewUserAudioMessage(utterance, ""))

	body, err := json.Marshal(completionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("slm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("slm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("slm: post: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("slm: service returned %s", resp.Status)
	}

	ch := make(chan string, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				if data == "[DONE]" {
					return
				}
				continue
			}
			var chunk completionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// buildMessages converts the stored history to wire shape: system prompts
// first, then the (possibly truncated) turns with speaker labels and the
// optional transcript substitution applied.
func (c *Client) buildMessages(history []slm.Message, speakers diar.Speakers) []slm.Message {
	messages := make([]slm.Message, 0, len(c.prompts)+len(history)+1)
	for _, p := range c.prompts {
		messages = append(messages, slm.NewSystemMessage(p))
	}

	if c.maxMessages > 0 && len(history) > c.maxMessages {
		history = history[len(history)-c.maxMessages:]
	}

	for _, m := range history {
		if m.Role != slm.RoleUser || m.Contents == nil {
			messages = append(messages, m)
			continue
		}
		contents := make([]slm.Content, 0, len(m.Contents))
		for _, part := range m.Contents {
			if n, ok := speakers[part.ID]; ok {
				contents = append(contents, slm.Content{
					Type: slm.ContentTypeText,
					Text: fmt.Sprintf("[speaker %d] ", n),
				})
			}
			if c.useTextHistory && part.Type == slm.ContentTypeAudio {
				part = slm.Content{Type: slm.ContentTypeText, Text: part.Transcript}
			}
			contents = append(contents, part)
		}
		messages = append(messages, slm.Message{Role: m.Role, Contents: contents})
	}
	return messages
}
