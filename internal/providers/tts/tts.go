package tts

import "context"

// Provider synthesizes translated text to audio. Best-effort: a failure
// for one language only omits that language's audio.
type Provider interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
	Close() error
}
