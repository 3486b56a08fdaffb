// Package remote provides an asr.Provider backed by a recognition service
// over HTTP. The utterance is posted as a WAV file; the service answers with
// a JSON transcript.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/selene/pkg/audio"
	"github.com/MrWong99/selene/pkg/provider/asr"
)

// defaultTimeout bounds one recognition round trip. Recognition gates the
// whole turn, so a stuck service must fail fast.
const defaultTimeout = 5 * time.Second

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithTimeout overrides the default 5 s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements asr.Provider against a remote recognition service.
type Client struct {
	url        string
	httpClient *http.Client
}

var _ asr.Provider = (*Client)(nil)

// New creates a Client posting to the given URL.
func New(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("asr: url must not be empty")
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// transcriptResponse is the JSON body returned by the recognition service.
type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe implements asr.Provider.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("asr: build form: %w", err)
	}
	if _, err := fw.Write(audio.PCMToWAV(pcm, audio.DefaultSampleRate)); err != nil {
		return "", fmt.Errorf("asr: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("asr: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", fmt.Errorf("asr: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("asr: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("asr: service returned %s", resp.Status)
	}

	var tr transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("asr: decode response: %w", err)
	}
	return tr.Transcript, nil
}
