package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/meetlingo/meetlingo/internal/cache"
	"github.com/meetlingo/meetlingo/internal/models"
	mongorepo "github.com/meetlingo/meetlingo/internal/repositories/mongo"
	"github.com/meetlingo/meetlingo/internal/utils"
)

// codeAttempts bounds join-code generation; exhausting it means the
// 6-digit code space is pathologically crowded.
const codeAttempts = 10

const sessionCacheTTL = 30 * time.Second

type SessionService interface {
	Create(ctx context.Context, projectID *string, createdBy string) (*models.Session, error)
	// Get resolves a code to its session regardless of status.
	Get(ctx context.Context, code string) (*models.Session, error)
	// GetActive additionally fails with SESSION_ENDED for ended sessions,
	// so callers can tell "meeting is over" from "wrong code".
	GetActive(ctx context.Context, code string) (*models.Session, error)
	// End is a no-op on an already-ended session and NOT_FOUND otherwise.
	End(ctx context.Context, code string) (*models.Session, error)
	ListRecent(ctx context.Context, limit int64) ([]models.Session, error)
}

type sessionService struct {
	sessions mongorepo.SessionRepository
	cache    cache.Cache // may be nil
	cooldown time.Duration
}

// NewSessionService builds the registry. cooldown is how long an ended
// session keeps occupying its code before the TTL index frees it.
func NewSessionService(sessions mongorepo.SessionRepository, c cache.Cache, cooldown time.Duration) SessionService {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &sessionService{sessions: sessions, cache: c, cooldown: cooldown}
}

func (s *sessionService) Create(ctx context.Context, projectID *string, createdBy string) (*models.Session, error) {
	const op = "SessionService.Create"

	for i := 0; i < codeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to generate session code", err)
		}

		session := &models.Session{
			Code:      code,
			ProjectID: projectID,
			CreatedBy: createdBy,
			Status:    models.SessionActive,
			CreatedAt: time.Now().UTC(),
		}

		err = s.sessions.Create(ctx, session)
		if errors.Is(err, mongorepo.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
		}
		return session, nil
	}

	return nil, utils.E(utils.CodeResourceExhausted, op, "could not allocate a unique session code", nil)
}

func (s *sessionService) Get(ctx context.Context, code string) (*models.Session, error) {
	const op = "SessionService.Get"

	if len(code) != 6 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session code must be 6 digits", nil)
	}

	if s.cache != nil {
		var cached models.Session
		if hit, err := s.cache.GetJSON(ctx, cache.SessionKey(code), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	out, err := s.sessions.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cache.SessionKey(code), out, sessionCacheTTL)
	}
	return out, nil
}

func (s *sessionService) GetActive(ctx context.Context, code string) (*models.Session, error) {
	const op = "SessionService.GetActive"

	ss, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ss.Active() {
		return nil, utils.E(utils.CodeSessionEnded, op, "session has ended", nil)
	}
	return ss, nil
}

func (s *sessionService) End(ctx context.Context, code string) (*models.Session, error) {
	const op = "SessionService.End"

	ss, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ss.Active() {
		// second End is legal and a no-op
		return ss, nil
	}

	now := time.Now().UTC()
	expires := now.Add(s.cooldown)
	if err := s.sessions.End(ctx, code, now, expires); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}

	if s.cache != nil {
		_ = s.cache.Del(ctx, cache.SessionKey(code))
	}

	ss.Status = models.SessionEnded
	ss.EndedAt = &now
	ss.ExpiresAt = &expires
	return ss, nil
}

func (s *sessionService) ListRecent(ctx context.Context, limit int64) ([]models.Session, error) {
	const op = "SessionService.ListRecent"

	rows, err := s.sessions.ListRecent(ctx, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list sessions", err)
	}
	return rows, nil
}

// generateCode draws 6 random digits. Uniqueness among live sessions is
// enforced by the store, not here.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	digits := n.Int64()
	code := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		code[i] = byte('0' + digits%10)
		digits /= 10
	}
	return string(code), nil
}
