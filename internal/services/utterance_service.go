package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meetlingo/meetlingo/internal/protocol"
	"github.com/meetlingo/meetlingo/internal/providers/translate"
	"github.com/meetlingo/meetlingo/internal/providers/tts"
	"github.com/meetlingo/meetlingo/internal/storage"
	"github.com/meetlingo/meetlingo/internal/utils"
	"github.com/sirupsen/logrus"
)

const (
	translateTimeout  = 10 * time.Second
	synthesizeTimeout = 10 * time.Second

	// DefaultSpeaker is used when a client omits the speaker name.
	DefaultSpeaker = "Anonymous"
)

// UtteranceService is the pipeline from a raw utterance to a draft
// transcript: translation into every configured target language, then
// best-effort synthesis. Sequencing stays with the hub; Submit never
// touches the transcript log.
type UtteranceService interface {
	Submit(ctx context.Context, sessionCode, speakerName, text, language string) (*protocol.Transcript, error)
}

type utteranceService struct {
	translator translate.Provider
	synth      tts.Provider     // may be nil
	uploader   storage.Uploader // may be nil
	targets    []string
	log        *logrus.Logger
}

func NewUtteranceService(translator translate.Provider, synth tts.Provider, uploader storage.Uploader, targets []string, log *logrus.Logger) UtteranceService {
	if len(targets) == 0 {
		targets = []string{"ko", "bn", "en"}
	}
	if log == nil {
		log = logrus.New()
	}
	return &utteranceService{
		translator: translator,
		synth:      synth,
		uploader:   uploader,
		targets:    targets,
		log:        log,
	}
}

func (s *utteranceService) Submit(ctx context.Context, sessionCode, speakerName, text, language string) (*protocol.Transcript, error) {
	const op = "UtteranceService.Submit"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "utterance text is empty", nil)
	}
	if speakerName = strings.TrimSpace(speakerName); speakerName == "" {
		speakerName = DefaultSpeaker
	}
	language = normalizeLanguage(language)

	t := &protocol.Transcript{
		ID:               uuid.NewString(),
		SessionCode:      sessionCode,
		SpeakerName:      speakerName,
		OriginalText:     text,
		OriginalLanguage: language,
		Translations:     make(map[string]string, len(s.targets)),
	}

	// One translation per configured target; a single failed target
	// degrades to the source text with the partial marker, it never
	// fails the submission.
	for _, target := range s.targets {
		if target == language {
			t.Translations[target] = text
			continue
		}

		translated, err := s.translateOne(ctx, text, language, target)
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"session_code": sessionCode,
				"target":       target,
			}).Warn("translation failed, degrading to source text")
			t.Translations[target] = text
			t.Partial = true
			continue
		}
		t.Translations[target] = translated
	}

	if s.synth != nil {
		s.synthesize(ctx, t)
	}

	return t, nil
}

func (s *utteranceService) translateOne(ctx context.Context, text, source, target string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, translateTimeout)
	defer cancel()
	return s.translator.Translate(tctx, text, source, target)
}

// synthesize fills t.Audio (or t.AudioURLs when an uploader is wired)
// per target language. Every failure is absorbed: absence of audio for a
// language is a valid state.
func (s *utteranceService) synthesize(ctx context.Context, t *protocol.Transcript) {
	for lang, text := range t.Translations {
		if text == "" {
			continue
		}

		sctx, cancel := context.WithTimeout(ctx, synthesizeTimeout)
		audio, err := s.synth.Synthesize(sctx, text, lang)
		cancel()
		if err != nil || len(audio) == 0 {
			if err != nil {
				s.log.WithError(err).WithField("language", lang).Warn("synthesis failed")
			}
			continue
		}

		if s.uploader != nil {
			name := fmt.Sprintf("audio/%s/%s-%s.mp3", t.SessionCode, t.ID, lang)
			url, err := s.uploader.Upload(ctx, name, "audio/mpeg", bytes.NewReader(audio))
			if err == nil {
				if t.AudioURLs == nil {
					t.AudioURLs = make(map[string]string)
				}
				t.AudioURLs[lang] = url
				continue
			}
			s.log.WithError(err).WithField("language", lang).Warn("audio upload failed, inlining bytes")
		}

		if t.Audio == nil {
			t.Audio = make(map[string][]byte)
		}
		t.Audio[lang] = audio
	}
}

func normalizeLanguage(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "", "auto":
		return "en"
	case "korean":
		return "ko"
	case "bengali":
		return "bn"
	case "english":
		return "en"
	default:
		// keep short codes as-is, strip a region suffix like en-US
		if i := strings.IndexByte(v, '-'); i > 0 {
			return v[:i]
		}
		return v
	}
}
