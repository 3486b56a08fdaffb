// Package diar provides the speaker diarization client. Each finalised
// utterance is posted to a remote diarization service which accumulates the
// session's audio and answers with a mapping from utterance id to speaker
// index, so the language model can tell recurring voices apart.
package diar

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/selene/pkg/audio"
)

const defaultTimeout = 5 * time.Second

// Speakers maps an utterance id (md5 hex of its PCM) to a speaker index.
type Speakers map[string]int

// Provider is the abstraction over a diarization backend.
type Provider interface {
	// Attribute submits a finalised utterance and returns the updated speaker
	// map for every utterance of the session seen so far.
	Attribute(ctx context.Context, pcm []byte) (Speakers, error)
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithSpeakerBounds sets the minimum and maximum number of speakers the
// service should consider. Defaults are 1 and 2.
func WithSpeakerBounds(min, max int) Option {
	return func(c *Client) {
		c.minSpeakers = min
		c.maxSpeakers = max
	}
}

// WithSpeakerCount pins the exact number of speakers, overriding the bounds.
func WithSpeakerCount(n int) Option {
	return func(c *Client) {
		c.numSpeakers = &n
	}
}

// WithTimeout overrides the default 5 s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Client implements Provider against a remote diarization service.
type Client struct {
	url         string
	sessionID   string
	minSpeakers int
	maxSpeakers int
	numSpeakers *int
	httpClient  *http.Client
}

var _ Provider = (*Client)(nil)

// New creates a Client posting to the given URL on behalf of sessionID.
func New(url, sessionID string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("diar: url must not be empty")
	}
	c := &Client{
		url:         url,
		sessionID:   sessionID,
		minSpeakers: 1,
		maxSpeakers: 2,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// requestParams is the JSON blob carried in the multipart "params" field.
type requestParams struct {
	SessionID string `json:"session_id"`
	SentID    string `json:"sent_id"`
	MinSpk    int    `json:"min_spk"`
	MaxSpk    int    `json:"max_spk"`
	NumSpk    *int   `json:"num_spk"`
	Suffix    string `json:"suffix"`
}

// UtteranceID returns the id under which an utterance is keyed in the
// speaker map.
func UtteranceID(pcm []byte) string {
	sum := md5.Sum(pcm)
	return hex.EncodeToString(sum[:])
}

// Attribute implements Provider.
func (c *Client) Attribute(ctx context.Context, pcm []byte) (Speakers, error) {
	params, err := json.Marshal(requestParams{
		SessionID: c.sessionID,
		SentID:    UtteranceID(pcm),
		MinSpk:    c.minSpeakers,
		MaxSpk:    c.maxSpeakers,
		NumSpk:    c.numSpeakers,
		Suffix:    "wav",
	})
	if err != nil {
		return nil, fmt.Errorf("diar: marshal params: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("params", string(params)); err != nil {
		return nil, fmt.Errorf("diar: build form: %w", err)
	}
	fw, err := mw.CreateFormFile("new_audio", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("diar: build form: %w", err)
	}
	if _, err := fw.Write(audio.PCMToWAV(pcm, audio.DefaultSampleRate)); err != nil {
		return nil, fmt.Errorf("diar: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("diar: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("diar: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diar: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("diar: service returned %s", resp.Status)
	}

	var speakers Speakers
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("diar: decode response: %w", err)
	}
	return speakers, nil
}
