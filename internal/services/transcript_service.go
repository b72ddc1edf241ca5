package services

import (
	"context"
	"strings"

	"github.com/meetlingo/meetlingo/internal/models"
	pgrepo "github.com/meetlingo/meetlingo/internal/repositories/postgres"
	"github.com/meetlingo/meetlingo/internal/utils"
)

type TranscriptService interface {
	ListBySession(ctx context.Context, sessionCode string) ([]models.Transcript, error)
	Search(ctx context.Context, query string, limit int) ([]models.Transcript, error)
}

type transcriptService struct {
	transcripts pgrepo.TranscriptRepo
}

func NewTranscriptService(transcripts pgrepo.TranscriptRepo) TranscriptService {
	return &transcriptService{transcripts: transcripts}
}

func (s *transcriptService) ListBySession(ctx context.Context, sessionCode string) ([]models.Transcript, error) {
	const op = "TranscriptService.ListBySession"

	if sessionCode == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session code is required", nil)
	}

	rows, err := s.transcripts.ListBySession(ctx, sessionCode)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list transcripts", err)
	}
	return rows, nil
}

func (s *transcriptService) Search(ctx context.Context, query string, limit int) ([]models.Transcript, error) {
	const op = "TranscriptService.Search"

	if strings.TrimSpace(query) == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "query is required", nil)
	}

	rows, err := s.transcripts.Search(ctx, query, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to search transcripts", err)
	}
	return rows, nil
}
