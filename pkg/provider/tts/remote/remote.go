// Package remote provides a tts.Provider backed by a streaming synthesis
// service over HTTP. Each segment goes out as a multipart POST carrying the
// rendering parameters and an optional voice-cloning reference WAV; the
// response body streams back raw PCM16.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/selene/pkg/audio"
	"github.com/MrWong99/selene/pkg/provider/control"
	"github.com/MrWong99/selene/pkg/provider/tts"
)

// readSize is how much synthesized PCM is forwarded per channel send.
const readSize = 4096

// defaultHeaderTimeout bounds the wait for the first response byte. The body
// itself streams for as long as the segment takes to synthesize.
const defaultHeaderTimeout = 5 * time.Second

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithForceDefault pins voice, speed and emotion to "default", ignoring the
// per-turn control hints. Useful when the synthesis model misbehaves on
// uncommon renderings.
func WithForceDefault(enabled bool) Option {
	return func(c *Client) {
		c.forceDefault = enabled
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements tts.Provider against a remote synthesis service.
type Client struct {
	url          string
	sessionID    string
	forceDefault bool
	httpClient   *http.Client
}

var _ tts.Provider = (*Client)(nil)

// New creates a Client posting to the given URL on behalf of sessionID.
func New(url, sessionID string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("tts: url must not be empty")
	}
	c := &Client{
		url:       url,
		sessionID: sessionID,
		httpClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: defaultHeaderTimeout},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// requestParams is the JSON blob carried in the multipart "params" field.
type requestParams struct {
	GenText      string `json:"gen_text"`
	RefText      string `json:"ref_text"`
	Voice        string `json:"voice"`
	SessionID    string `json:"session_id"`
	ResponseID   string `json:"response_id"`
	Speed        string `json:"speed"`
	Emotion      string `json:"emotion"`
	Stream       bool   `json:"stream"`
	TextFrontend bool   `json:"text_frontend"`
	Dtype        string `json:"dtype"`
}

// Synthesize implements tts.Provider.
func (c *Client) Synthesize(ctx context.Context, text <-chan string, ctrl control.Bundle, ref tts.Reference) (<-chan []byte, error) {
	params := requestParams{
		RefText:      ref.Transcript,
		Voice:        ctrl.Timbre,
		SessionID:    c.sessionID,
		ResponseID:   uuid.NewString(),
		Speed:        ctrl.Speed,
		Emotion:      ctrl.Emotion,
		Stream:       true,
		TextFrontend: true,
		Dtype:        "np.int16",
	}
	if c.forceDefault {
		params.Voice = control.DefaultValue
		params.Speed = control.DefaultValue
		params.Emotion = control.DefaultValue
	}

	out := make(chan []byte, 32)
	go func() {
		defer close(out)

		var seg tts.Segmenter
		for chunk := range text {
			segment, ok := seg.Push(chunk)
			if !ok {
				continue
			}
			if err := c.request(ctx, segment, params, ref.Speech, out); err != nil {
				return
			}
		}
		if rest := seg.Flush(); rest != "" {
			_ = c.request(ctx, rest, params, ref.Speech, out)
		}
	}()
	return out, nil
}

// request synthesizes one segment and forwards the streamed PCM to out.
func (c *Client) request(ctx context.Context, segment string, params requestParams, refSpeech []byte, out chan<- []byte) error {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil
	}
	params.GenText = segment

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("tts: marshal params: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("params", string(raw)); err != nil {
		return fmt.Errorf("tts: build form: %w", err)
	}
	if refSpeech != nil {
		fw, err := mw.CreateFormFile("ref_audio", "reference.wav")
		if err != nil {
			return fmt.Errorf("tts: build form: %w", err)
		}
		if _, err := fw.Write(audio.PCMToWAV(refSpeech, audio.DefaultSampleRate)); err != nil {
			return fmt.Errorf("tts: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("tts: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tts: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts: service returned %s", resp.Status)
	}

	buf := make([]byte, readSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("tts: read stream: %w", err)
		}
	}
}
