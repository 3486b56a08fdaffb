// Package control normalizes response-control decisions made by a small side
// LLM. Each dialog turn the transcript is handed to a control model that
// answers with a loose JSON object; Normalize repairs and coerces that answer
// into a fixed [Bundle] the orchestrator can act on: whether to run speaker
// diarization, whether to respond at all, and which voice rendering hints
// (emotion, speed, timbre) to forward to speech synthesis.
//
// Control models are optional. A session without one behaves as if every turn
// produced [Default].
package control

import (
	"context"
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// DefaultValue is the neutral setting for the string-valued voice hints.
const DefaultValue = "default"

// Bundle is the fixed-shape decision for one dialog turn.
type Bundle struct {
	// Diarization requests speaker attribution for this turn.
	Diarization bool `json:"diarization"`

	// Response reports whether the agent should answer at all. Nil means the
	// control model expressed no opinion and is treated as true.
	Response *bool `json:"response"`

	// Emotion, Speed and Timbre are rendering hints forwarded to speech
	// synthesis. "default" leaves the synthesizer's own setting in place.
	Emotion string `json:"emotion"`
	Speed   string `json:"speed"`
	Timbre  string `json:"timbre"`
}

// Default returns the Bundle used when no control model is configured or its
// output could not be interpreted.
func Default() Bundle {
	return Bundle{
		Diarization: false,
		Response:    nil,
		Emotion:     DefaultValue,
		Speed:       DefaultValue,
		Timbre:      DefaultValue,
	}
}

// Respond reports whether the agent should produce a response this turn.
// An absent decision counts as yes.
func (b Bundle) Respond() bool {
	return b.Response == nil || *b.Response
}

// Normalize turns a raw control-model answer into a Bundle. The answer is
// first run through JSON repair since small models routinely emit trailing
// prose, single quotes or unquoted keys. Unknown keys are dropped and
// mistyped or missing keys fall back to their defaults. Normalize never
// fails; garbage input yields Default().
func Normalize(raw string) Bundle {
	b := Default()

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return b
	}
	var loose map[string]any
	if err := json.Unmarshal([]byte(fixed), &loose); err != nil {
		return b
	}

	if v, ok := loose["diarization"].(bool); ok {
		b.Diarization = v
	}
	if v, ok := loose["response"].(bool); ok {
		b.Response = &v
	}
	if v, ok := loose["emotion"].(string); ok && v != "" {
		b.Emotion = v
	}
	if v, ok := loose["speed"].(string); ok && v != "" {
		b.Speed = v
	}
	if v, ok := loose["timbre"].(string); ok && v != "" {
		b.Timbre = v
	}
	return b
}

// Completer is the abstraction over any control LLM backend. Implementations
// must be safe for concurrent use and must honor ctx cancellation.
type Completer interface {
	// Complete sends the system instruction and the user transcript to the
	// model and returns its raw textual answer.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Client pairs a Completer with its system instruction and produces a
// normalized Bundle per turn.
type Client struct {
	completer Completer
	system    string
}

// NewClient creates a control Client. system is the instruction that tells
// the model which JSON keys to answer with.
func NewClient(completer Completer, system string) *Client {
	return &Client{completer: completer, system: system}
}

// Decide asks the control model about transcript and normalizes its answer.
// On backend failure the error is returned alongside Default() so callers can
// log and carry on with neutral settings.
func (c *Client) Decide(ctx context.Context, transcript string) (Bundle, error) {
	raw, err := c.completer.Complete(ctx, c.system, transcript)
	if err != nil {
		return Default(), err
	}
	return Normalize(raw), nil
}
