// Package channel implements the per-session browser-facing transports: a
// duplex PCM audio channel, its paced live-stream variant, and the event
// channel. All three wrap a WebSocket that the client attaches after the
// session has been created over plain HTTP.
package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/selene/pkg/audio"
)

// Text frame subtypes used by the interpretation sessions.
const (
	TextTypeASR = "asr"
	TextTypeAST = "ast"
)

// AudioConfig describes the rate conversion on both directions of the
// channel. Zero rates mean the pipeline's native 16 kHz mono.
type AudioConfig struct {
	// ReadSrcRate and ReadSrcChannels describe the microphone stream the
	// client sends. Inbound chunks are converted to 16 kHz mono.
	ReadSrcRate     int
	ReadSrcChannels int

	// WriteSrcRate is the rate the synthesizer produces.
	WriteSrcRate int

	// WriteDstRate and WriteDstChannels describe the stream the client
	// expects to play back.
	WriteDstRate     int
	WriteDstChannels int
}

// withDefaults fills unset fields with the pipeline-native values.
func (c AudioConfig) withDefaults() AudioConfig {
	if c.ReadSrcRate == 0 {
		c.ReadSrcRate = audio.DefaultSampleRate
	}
	if c.ReadSrcChannels == 0 {
		c.ReadSrcChannels = 1
	}
	if c.WriteSrcRate == 0 {
		c.WriteSrcRate = audio.DefaultSampleRate
	}
	if c.WriteDstRate == 0 {
		c.WriteDstRate = audio.DefaultSampleRate
	}
	if c.WriteDstChannels == 0 {
		c.WriteDstChannels = 1
	}
	return c
}

// Audio is the duplex PCM channel. The client streams binary microphone
// frames up; the agent sends JSON frames down, audio base64-encoded.
//
// The WebSocket is attached after construction; Attached and Closed expose
// the lifecycle to the serving handler and the session pumps.
type Audio struct {
	cfg AudioConfig

	mu   sync.Mutex
	conn *websocket.Conn

	readRes  *audio.Resampler
	writeRes *audio.Resampler

	attached  chan struct{}
	closed    chan struct{}
	attachOne sync.Once
	closeOne  sync.Once
}

// NewAudio creates an unattached audio channel with the given conversion
// configuration.
func NewAudio(cfg AudioConfig) (*Audio, error) {
	cfg = cfg.withDefaults()
	a := &Audio{
		cfg:      cfg,
		attached: make(chan struct{}),
		closed:   make(chan struct{}),
	}

	if cfg.ReadSrcRate != audio.DefaultSampleRate || cfg.ReadSrcChannels != 1 {
		r, err := audio.NewResampler(audio.ResamplerConfig{
			SrcRate:     cfg.ReadSrcRate,
			DstRate:     audio.DefaultSampleRate,
			SrcChannels: cfg.ReadSrcChannels,
			DstChannels: 1,
		})
		if err != nil {
			return nil, fmt.Errorf("channel: read resampler: %w", err)
		}
		a.readRes = r
	}
	if cfg.WriteSrcRate != cfg.WriteDstRate || cfg.WriteDstChannels != 1 {
		r, err := audio.NewResampler(audio.ResamplerConfig{
			SrcRate:     cfg.WriteSrcRate,
			DstRate:     cfg.WriteDstRate,
			SrcChannels: 1,
			DstChannels: cfg.WriteDstChannels,
		})
		if err != nil {
			return nil, fmt.Errorf("channel: write resampler: %w", err)
		}
		a.writeRes = r
	}
	return a, nil
}

// Attach binds the channel to an accepted WebSocket. Only the first attach
// takes effect.
func (a *Audio) Attach(conn *websocket.Conn) {
	a.attachOne.Do(func() {
		conn.SetReadLimit(16 << 20)
		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		close(a.attached)
	})
}

// Ready reports whether a WebSocket is attached.
func (a *Audio) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Attached is closed once the client's WebSocket is bound.
func (a *Audio) Attached() <-chan struct{} { return a.attached }

// Closed is closed when the channel shuts down or the client disconnects.
func (a *Audio) Closed() <-chan struct{} { return a.closed }

// Read returns a channel of inbound PCM16 mono 16 kHz chunks. The reader
// waits for the WebSocket to attach, then pumps until disconnect or ctx
// cancellation, closes the channel, and marks the Audio closed.
func (a *Audio) Read(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer a.markClosed()

		select {
		case <-a.attached:
		case <-ctx.Done():
			return
		case <-a.closed:
			return
		}

		for {
			typ, data, err := a.conn.Read(ctx)
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			chunk := data
			if a.readRes != nil {
				chunk, err = a.readRes.Convert(data)
				if err != nil || len(chunk) == 0 {
					continue
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// audioFrame is the outbound wire shape for both audio and text payloads.
type audioFrame struct {
	Data      string `json:"data"`
	DataType  string `json:"data_type"`
	TextType  string `json:"text_type,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Write converts and sends one PCM chunk as a base64 JSON frame. timestamp
// tags the frame with the response it belongs to; zero omits the tag.
func (a *Audio) Write(ctx context.Context, pcm []byte, timestamp int64) error {
	if a.writeRes != nil {
		var err error
		pcm, err = a.writeRes.Convert(pcm)
		if err != nil {
			return fmt.Errorf("channel: convert: %w", err)
		}
		if len(pcm) == 0 {
			return nil
		}
	}
	return a.send(ctx, audioFrame{
		Data:      base64.StdEncoding.EncodeToString(pcm),
		DataType:  "bytes",
		Timestamp: timestamp,
	})
}

// WriteText sends a text frame tagged with textType (TextTypeASR or
// TextTypeAST).
func (a *Audio) WriteText(ctx context.Context, text, textType string) error {
	return a.send(ctx, audioFrame{
		Data:     text,
		DataType: "text",
		TextType: textType,
	})
}

// Flush is a no-op on the plain channel; the paced variant overrides it.
func (a *Audio) Flush() {}

// Clear is a no-op on the plain channel; the paced variant overrides it.
func (a *Audio) Clear() {}

func (a *Audio) send(ctx context.Context, frame audioFrame) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return errors.New("channel: websocket not attached")
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("channel: marshal frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("channel: write frame: %w", err)
	}
	return nil
}

// resetWriteConversion drops audio buffered in the write-side resampler so a
// cancelled response's tail cannot leak into the next one. Caller must be the
// only goroutine writing.
func (a *Audio) resetWriteConversion() {
	if a.writeRes != nil {
		a.writeRes.Reset()
	}
}

func (a *Audio) markClosed() {
	a.closeOne.Do(func() { close(a.closed) })
}

// Close shuts the channel down and releases the WebSocket.
func (a *Audio) Close() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	a.markClosed()
	return nil
}
