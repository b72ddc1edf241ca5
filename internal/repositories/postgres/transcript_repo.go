package postgres

import (
	"context"

	"github.com/meetlingo/meetlingo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TranscriptRepo interface {
	Insert(ctx context.Context, t *models.Transcript) error
	ListBySession(ctx context.Context, sessionCode string) ([]models.Transcript, error)
	Search(ctx context.Context, query string, limit int) ([]models.Transcript, error)
}

type transcriptRepo struct {
	db *gorm.DB
}

func NewTranscriptRepo(db *gorm.DB) TranscriptRepo {
	return &transcriptRepo{db: db}
}

// Insert is idempotent on (session_code, sequence): the persistence worker
// may redeliver after an unacked stream read, so conflicts are dropped.
func (r *transcriptRepo) Insert(ctx context.Context, t *models.Transcript) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_code"}, {Name: "sequence"}},
			DoNothing: true,
		}).
		Create(t).Error
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionCode string) ([]models.Transcript, error) {
	var rows []models.Transcript
	err := r.db.WithContext(ctx).
		Where("session_code = ?", sessionCode).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

func (r *transcriptRepo) Search(ctx context.Context, query string, limit int) ([]models.Transcript, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.Transcript
	pattern := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("original_text ILIKE ? OR translations::text ILIKE ?", pattern, pattern).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
