package model

import (
	"encoding/json"
	"time"
)

// ChallengeID uniquely identifies a challenge
type ChallengeID string

// ChallengeStatus represents the current phase of a challenge
type ChallengeStatus string

const (
	StatusPending    ChallengeStatus = "PENDING"     // Created, waiting for the invitee
	StatusAccepted   ChallengeStatus = "ACCEPTED"    // Invitee accepted, waiting for start
	StatusInProgress ChallengeStatus = "IN_PROGRESS" // Being played offline
	StatusCompleted  ChallengeStatus = "COMPLETED"   // Both players agreed on a winner
	StatusExpired    ChallengeStatus = "EXPIRED"     // Nobody accepted within the expiry window
	StatusDisputed   ChallengeStatus = "DISPUTED"    // Pulled out of play by an operator
)

// Terminal returns true if no further transitions are permitted
func (s ChallengeStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusDisputed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the edge s -> next is legal.
// Status only ever advances; there are no backward edges.
func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusAccepted || next == StatusExpired || next == StatusDisputed
	case StatusAccepted:
		return next == StatusInProgress || next == StatusDisputed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusDisputed
	}
	return false
}

// ChallengeExpiry is how long a challenge stays open for acceptance
const ChallengeExpiry = 24 * time.Hour

// Challenge is a two-player wager on a named game
type Challenge struct {
	ID        ChallengeID
	CreatorID UserID
	InviteeID UserID // empty while an open challenge is unclaimed
	IsOpen    bool   // true means the invitee slot is unbound

	Game        string
	Description string
	Rules       json.RawMessage

	// The wager
	Coins int
	XP    int

	Status   ChallengeStatus
	WinnerID UserID // set exactly when Status is COMPLETED

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  time.Time
	ExpiresAt   time.Time
	CompletedAt time.Time
	ClaimTime   time.Time
}

// HasInvitee returns true once the invitee slot is bound
func (c *Challenge) HasInvitee() bool {
	return c.InviteeID != ""
}

// Participants returns the creator and invitee ids; the invitee may be empty
func (c *Challenge) Participants() (UserID, UserID) {
	return c.CreatorID, c.InviteeID
}

// IsParticipant reports whether the user is the creator or the invitee
func (c *Challenge) IsParticipant(id UserID) bool {
	return id == c.CreatorID || (c.HasInvitee() && id == c.InviteeID)
}

// ExpiredBy reports whether the acceptance window has closed at the given time
func (c *Challenge) ExpiredBy(now time.Time) bool {
	return c.Status == StatusPending && !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
