package models

import (
	"encoding/json"
	"time"

	"github.com/meetlingo/meetlingo/internal/protocol"
	"gorm.io/datatypes"
)

// Transcript is the durable record of one finalized utterance. The hub's
// in-memory log is authoritative for ordering during a live session; rows
// land here asynchronously via the persistence worker and carry the same
// (session_code, sequence) identity, unique and gapless per session.
//
// Translations and AudioURLs are JSON objects keyed by language code.
// Synthesized audio bytes are never stored inline; when an audio bucket is
// configured they are offloaded to object storage and only URLs persist.
type Transcript struct {
	ID          string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionCode string `gorm:"column:session_code;type:varchar(6);uniqueIndex:uniq_session_seq,priority:1;index" json:"session_code"`
	Sequence    int64  `gorm:"column:sequence;uniqueIndex:uniq_session_seq,priority:2" json:"sequence"`

	SpeakerName      string `gorm:"column:speaker_name;type:text" json:"speaker_name"`
	OriginalText     string `gorm:"column:original_text;type:text" json:"original_text"`
	OriginalLanguage string `gorm:"column:original_language;type:varchar(16)" json:"original_language"`

	Translations datatypes.JSON `gorm:"column:translations;type:jsonb" json:"translations"`
	AudioURLs    datatypes.JSON `gorm:"column:audio_urls;type:jsonb" json:"audio_urls,omitempty"`

	// Partial marks transcripts where at least one target language fell
	// back to the source text after a translation failure.
	Partial bool `gorm:"column:partial" json:"partial,omitempty"`

	Timestamp time.Time `gorm:"column:timestamp;type:timestamptz;index" json:"timestamp"`
}

func (Transcript) TableName() string { return "transcripts" }

// NewTranscriptRecord converts a sequenced wire transcript into its
// durable form. Inline audio bytes are intentionally not carried over.
func NewTranscriptRecord(t *protocol.Transcript) (*Transcript, error) {
	translations, err := json.Marshal(t.Translations)
	if err != nil {
		return nil, err
	}

	rec := &Transcript{
		ID:               t.ID,
		SessionCode:      t.SessionCode,
		Sequence:         t.Sequence,
		SpeakerName:      t.SpeakerName,
		OriginalText:     t.OriginalText,
		OriginalLanguage: t.OriginalLanguage,
		Translations:     datatypes.JSON(translations),
		Partial:          t.Partial,
		Timestamp:        t.Timestamp,
	}

	if len(t.AudioURLs) > 0 {
		urls, err := json.Marshal(t.AudioURLs)
		if err != nil {
			return nil, err
		}
		rec.AudioURLs = datatypes.JSON(urls)
	}
	return rec, nil
}
