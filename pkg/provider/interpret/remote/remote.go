// Package remote provides an interpret.Client backed by a remote
// interpretation service over a streaming WebSocket.
package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/selene/pkg/audio"
	"github.com/MrWong99/selene/pkg/provider/interpret"
)

// Client implements interpret.Client against a remote interpretation service.
type Client struct {
	baseURL string
	opts    interpret.Options

	conn    *websocket.Conn
	results chan interpret.Result

	// resampler is built lazily on the first audio result whose sample rate
	// differs from 16 kHz.
	resampler *audio.Resampler

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ interpret.Client = (*Client)(nil)

// New creates a Client for the given service base URL. The connection is not
// opened until Setup.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("interpret: baseURL must not be empty")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		results: make(chan interpret.Result, 32),
		done:    make(chan struct{}),
	}, nil
}

// Setup implements interpret.Client.
func (c *Client) Setup(ctx context.Context, sessionID string, opts interpret.Options) error {
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "en"
	}
	c.opts = opts

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("%s/ws/%s", c.baseURL, sessionID), nil)
	if err != nil {
		return fmt.Errorf("interpret: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop(ctx)
	return nil
}

// audioPayload is the data object of an outbound audio message.
type audioPayload struct {
	Bytes          string `json:"bytes"`
	SampleRate     int    `json:"sample_rate"`
	Final          bool   `json:"final"`
	TgtLang        string `json:"tgt_lang"`
	VoiceClone     bool   `json:"voice_clone"`
	GenerateSpeech bool   `json:"generate_speech"`
	NoiseReduction bool   `json:"noise_reduction"`
}

// outboundMessage is one microphone chunk on the wire.
type outboundMessage struct {
	Type string       `json:"type"`
	Data audioPayload `json:"data"`
}

// inboundMessage is one result from the service.
type inboundMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Bytes      string `json:"bytes"`
	SampleRate int    `json:"sample_rate"`
}

// Feed implements interpret.Client.
func (c *Client) Feed(ctx context.Context, chunk []byte) error {
	select {
	case <-c.done:
		return errors.New("interpret: client is closed")
	default:
	}

	msg, err := json.Marshal(outboundMessage{
		Type: "audio",
		Data: audioPayload{
			Bytes:          base64.StdEncoding.EncodeToString(chunk),
			SampleRate:     audio.DefaultSampleRate,
			Final:          false,
			TgtLang:        c.opts.TargetLanguage,
			VoiceClone:     c.opts.VoiceClone,
			GenerateSpeech: c.opts.GenerateSpeech,
			NoiseReduction: c.opts.NoiseReduction,
		},
	})
	if err != nil {
		return fmt.Errorf("interpret: marshal chunk: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("interpret: send chunk: %w", err)
	}
	return nil
}

// Results implements interpret.Client.
func (c *Client) Results() <-chan interpret.Result { return c.results }

// Close implements interpret.Client.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "session closed")
		}
		c.wg.Wait()
	})
	return nil
}

// readLoop parses service messages and forwards results.
func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.results)

	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		res, ok := c.parse(msg)
		if !ok {
			continue
		}
		select {
		case c.results <- res:
		case <-c.done:
			return
		}
	}
}

// parse converts one wire message into a Result. Audio at a foreign sample
// rate is converted to 16 kHz through a lazily constructed resampler.
func (c *Client) parse(msg []byte) (interpret.Result, bool) {
	var in inboundMessage
	if err := json.Unmarshal(msg, &in); err != nil {
		return interpret.Result{}, false
	}

	switch in.Type {
	case "asr":
		return interpret.Result{Kind: interpret.KindASR, Text: in.Text}, true
	case "ast":
		return interpret.Result{Kind: interpret.KindAST, Text: in.Text}, true
	case "audio":
		speech, err := base64.StdEncoding.DecodeString(in.Bytes)
		if err != nil {
			return interpret.Result{}, false
		}
		if in.SampleRate != 0 && in.SampleRate != audio.DefaultSampleRate {
			if c.resampler == nil {
				r, err := audio.NewResampler(audio.ResamplerConfig{
					SrcRate: in.SampleRate,
					DstRate: audio.DefaultSampleRate,
				})
				if err != nil {
					return interpret.Result{}, false
				}
				c.resampler = r
			}
			converted, err := c.resampler.Convert(speech)
			if err != nil {
				return interpret.Result{}, false
			}
			speech = converted
		}
		if len(speech) == 0 {
			return interpret.Result{}, false
		}
		return interpret.Result{Kind: interpret.KindAudio, Speech: speech}, true
	default:
		return interpret.Result{}, false
	}
}
