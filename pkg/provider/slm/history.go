package slm

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/MrWong99/selene/pkg/audio"
)

// Roles used in the conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentTypeText and ContentTypeAudio are the content part discriminators.
const (
	ContentTypeText  = "text"
	ContentTypeAudio = "input_audio"
)

// InputAudio is the audio payload of a user content part.
type InputAudio struct {
	// Data is the base64-encoded WAV of the utterance.
	Data string `json:"data"`

	// Format names the container; always "wav" here.
	Format string `json:"format"`
}

// Content is one part of a user message. Text parts carry Text; audio parts
// carry InputAudio plus an ID (md5 hex of the PCM, shared with diarization)
// and the recognized Transcript.
type Content struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *InputAudio `json:"input_audio,omitempty"`
	ID         string      `json:"id,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
}

// Message is one turn of the conversation. User turns carry structured
// Contents; system and assistant turns carry plain Text.
type Message struct {
	Role     string
	Text     string
	Contents []Content
}

// MarshalJSON renders the turn in chat-completion shape: structured parts
// when present, a plain string otherwise.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Contents != nil {
		return json.Marshal(struct {
			Role    string    `json:"role"`
			Content []Content `json:"content"`
		}{Role: m.Role, Content: m.Contents})
	}
	return json.Marshal(struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: m.Role, Content: m.Text})
}

// AudioID returns the history id of an utterance, md5 hex over the raw PCM.
// Diarization keys its speaker map by the same id.
func AudioID(pcm []byte) string {
	sum := md5.Sum(pcm)
	return hex.EncodeToString(sum[:])
}

// NewUserAudioMessage builds a user turn from a finalised utterance.
func NewUserAudioMessage(pcm []byte, transcript string) Message {
	return Message{
		Role: RoleUser,
		Contents: []Content{{
			Type: ContentTypeAudio,
			InputAudio: &InputAudio{
				Data:   audio.PCMToBase64WAV(pcm, audio.DefaultSampleRate),
				Format: "wav",
			},
			ID:         AudioID(pcm),
			Transcript: transcript,
		}},
	}
}

// NewAssistantMessage builds an assistant turn from the spoken reply text.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// NewSystemMessage builds a system instruction turn.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}
