package translate

import "context"

// Provider turns text in a source language into text in a target language.
// Implementations are treated as opaque and may fail per call; the
// utterance pipeline absorbs failures per target language.
type Provider interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
	Close() error
}
