package storage

import (
	"context"
	"time"

	"github.com/playrival/rival-server/internal/model"
)

// ChallengePatch is a partial update applied to a stored challenge.
// Nil fields are left untouched, so transitions only write what they
// actually changed.
type ChallengePatch struct {
	InviteeID   *model.UserID
	IsOpen      *bool
	Status      *model.ChallengeStatus
	WinnerID    *model.UserID
	UpdatedAt   *time.Time
	AcceptedAt  *time.Time
	CompletedAt *time.Time
	ClaimTime   *time.Time
}

// Storage defines the interface for durable persistence
type Storage interface {
	// User operations (read-only; users are owned by the account service)
	FindUser(ctx context.Context, id model.UserID) (*model.User, error)

	// Challenge operations
	FindChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error)
	CreateChallenge(ctx context.Context, challenge *model.Challenge) error
	UpdateChallenge(ctx context.Context, id model.ChallengeID, patch ChallengePatch) error

	// Winner selection operations
	UpsertSelection(ctx context.Context, sel *model.WinnerSelection) error
	LoadActiveSelections(ctx context.Context) ([]*model.WinnerSelection, error)
	DeleteSelectionsFor(ctx context.Context, id model.ChallengeID) error

	// WithTransaction runs fn atomically. Storage methods invoked through
	// the transactional handle observe snapshot isolation.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Storage) error) error

	// Close releases the underlying connections
	Close() error
}
