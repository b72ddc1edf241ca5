package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/meetlingo/meetlingo/internal/models"
	"github.com/meetlingo/meetlingo/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrCodeTaken signals a join-code collision with an existing session.
// The unique index on code enforces this; callers retry with a new code.
var ErrCodeTaken = errors.New("session code already taken")

type SessionRepository interface {
	Create(ctx context.Context, s *models.Session) error
	GetByCode(ctx context.Context, code string) (*models.Session, error)
	End(ctx context.Context, code string, endedAt, expiresAt time.Time) error
	ListRecent(ctx context.Context, limit int64) ([]models.Session, error)
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return ErrCodeTaken
	}
	return err
}

func (r *sessionRepo) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOne(ctx, bson.M{"code": code}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) End(ctx context.Context, code string, endedAt, expiresAt time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"code": code},
		bson.M{"$set": bson.M{
			"status":     models.SessionEnded,
			"ended_at":   endedAt.UTC(),
			"expires_at": expiresAt.UTC(),
		}},
	)
	return err
}

func (r *sessionRepo) ListRecent(ctx context.Context, limit int64) ([]models.Session, error) {
	if limit <= 0 {
		limit = 50
	}

	cur, err := r.col.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
