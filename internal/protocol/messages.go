// Package protocol defines the JSON messages exchanged over the session
// WebSocket. Both the server hub and the participant client agent speak
// these types, so they live outside either side.
package protocol

import "time"

type MessageType string

const (
	// client -> hub
	TypeUtterance MessageType = "utterance"
	TypeAudio     MessageType = "audio"
	TypePing      MessageType = "ping"

	// hub -> client
	TypeConnected        MessageType = "connected"
	TypeTranscript       MessageType = "transcript"
	TypeSessionEnded     MessageType = "session_ended"
	TypeUserDisconnected MessageType = "user_disconnected"
	TypeError            MessageType = "error"
	TypePong             MessageType = "pong"
)

// Transcript is one finalized, translated utterance. Sequence is assigned
// by the hub at broadcast time and is the sole ordering authority within a
// session: monotonically increasing, gapless from 1.
type Transcript struct {
	ID          string `json:"id"`
	SessionCode string `json:"session_code"`
	Sequence    int64  `json:"sequence"`

	SpeakerName      string `json:"speaker_name"`
	OriginalText     string `json:"original_text"`
	OriginalLanguage string `json:"original_language"`

	// Translations has an entry for every configured target language.
	// On a per-language translation failure the entry degrades to the
	// source text and Partial is set.
	Translations map[string]string `json:"translations"`

	// Audio maps language code to synthesized audio bytes (base64 on the
	// wire); entries are best-effort and may be absent. When an audio
	// bucket is configured AudioURLs carries object URLs instead.
	Audio     map[string][]byte `json:"audio,omitempty"`
	AudioURLs map[string]string `json:"audio_urls,omitempty"`

	Partial   bool      `json:"partial,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is anything a participant sends over the socket.
type ClientMessage struct {
	Type MessageType `json:"type"`

	// utterance
	Text        string `json:"text,omitempty"`
	Language    string `json:"language,omitempty"`
	SpeakerName string `json:"speaker_name,omitempty"`

	// audio: base64 payload (optionally a data: URI), Language is a hint
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// ServerMessage is anything the hub sends over the socket. Kept flat:
// transcript fields are populated for TypeTranscript, Code/Message/Reason
// cover the error and terminal variants.
type ServerMessage struct {
	Type MessageType `json:"type"`

	ID               string            `json:"id,omitempty"`
	SessionCode      string            `json:"session_code,omitempty"`
	Sequence         int64             `json:"sequence,omitempty"`
	SpeakerName      string            `json:"speaker_name,omitempty"`
	OriginalText     string            `json:"original_text,omitempty"`
	OriginalLanguage string            `json:"original_language,omitempty"`
	Translations     map[string]string `json:"translations,omitempty"`
	Audio            map[string][]byte `json:"audio,omitempty"`
	AudioURLs        map[string]string `json:"audio_urls,omitempty"`
	Partial          bool              `json:"partial,omitempty"`
	Timestamp        *time.Time        `json:"timestamp,omitempty"`

	Code    string `json:"code,omitempty"`    // error
	Message string `json:"message,omitempty"` // error / informational
	Reason  string `json:"reason,omitempty"`  // session_ended
}

// TranscriptMessage wraps a transcript for broadcast.
func TranscriptMessage(t *Transcript) ServerMessage {
	ts := t.Timestamp
	return ServerMessage{
		Type:             TypeTranscript,
		ID:               t.ID,
		SessionCode:      t.SessionCode,
		Sequence:         t.Sequence,
		SpeakerName:      t.SpeakerName,
		OriginalText:     t.OriginalText,
		OriginalLanguage: t.OriginalLanguage,
		Translations:     t.Translations,
		Audio:            t.Audio,
		AudioURLs:        t.AudioURLs,
		Partial:          t.Partial,
		Timestamp:        &ts,
	}
}

// AsTranscript converts a TypeTranscript message back into a Transcript.
// Returns nil for any other message type.
func (m *ServerMessage) AsTranscript() *Transcript {
	if m.Type != TypeTranscript {
		return nil
	}
	t := &Transcript{
		ID:               m.ID,
		SessionCode:      m.SessionCode,
		Sequence:         m.Sequence,
		SpeakerName:      m.SpeakerName,
		OriginalText:     m.OriginalText,
		OriginalLanguage: m.OriginalLanguage,
		Translations:     m.Translations,
		Audio:            m.Audio,
		AudioURLs:        m.AudioURLs,
		Partial:          m.Partial,
	}
	if m.Timestamp != nil {
		t.Timestamp = *m.Timestamp
	}
	return t
}

// ErrorMessage builds a non-terminal error envelope.
func ErrorMessage(code, msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Code: code, Message: msg}
}

// EndedMessage builds the terminal session_ended envelope. Clients must
// not auto-reconnect after receiving it.
func EndedMessage(reason string) ServerMessage {
	return ServerMessage{Type: TypeSessionEnded, Reason: reason}
}
