// Package interpret provides the simultaneous interpretation client. The
// remote service consumes a live microphone stream and emits three result
// kinds interleaved: source-language transcripts, translated text, and
// synthesized speech in the target language.
package interpret

import "context"

// Kind discriminates the result variants.
type Kind int

const (
	// KindASR is a transcript in the speaker's language.
	KindASR Kind = iota
	// KindAST is the translated text.
	KindAST
	// KindAudio is synthesized target-language speech.
	KindAudio
)

// Result is one interpretation outcome. Text is set for KindASR and KindAST;
// Speech is PCM16 mono 16 kHz, set for KindAudio.
type Result struct {
	Kind   Kind
	Text   string
	Speech []byte
}

// Options configure one interpretation session.
type Options struct {
	// TargetLanguage is the translation target, e.g. "en". Defaults to "en".
	TargetLanguage string

	// VoiceClone asks the service to imitate the speaker's voice.
	VoiceClone bool

	// GenerateSpeech enables synthesized audio results. Defaults to true.
	GenerateSpeech bool

	// NoiseReduction enables denoising of the microphone stream.
	NoiseReduction bool
}

// Client is the abstraction over an interpretation session. The shape
// mirrors the detection client: feed chunks in, range over results.
type Client interface {
	// Setup establishes the backend connection for the given session.
	Setup(ctx context.Context, sessionID string, opts Options) error

	// Feed submits a PCM16 mono 16 kHz chunk for interpretation.
	Feed(ctx context.Context, chunk []byte) error

	// Results returns the channel of interpretation outcomes. Closed when
	// the session ends or the backend disconnects.
	Results() <-chan Result

	// Close tears the session down.
	Close() error
}
