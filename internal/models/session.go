package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Session is a meeting instance joined by its 6-digit numeric code.
// The code is the only lookup key participants use; a code resolves to at
// most one active session at any time (enforced by a unique Mongo index,
// ended sessions expire after a cooldown before the code can be reused).
type Session struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Code string             `bson:"code" json:"code"` // 6 random digits

	ProjectID *string `bson:"project_id,omitempty" json:"project_id,omitempty"`
	CreatedBy string  `bson:"created_by,omitempty" json:"created_by,omitempty"`

	Status string `bson:"status" json:"status"` // active|ended

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	// ExpiresAt drives the TTL index; set on end so ended codes free up
	// only after the cooldown window.
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"-"`
}

func (s *Session) Active() bool { return s.Status == SessionActive }
