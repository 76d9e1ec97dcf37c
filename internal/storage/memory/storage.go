package memory

import (
	"context"
	"sync"

	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/storage"
)

// Storage is an in-memory implementation of the storage interface,
// used by tests and memory-backed development runs
type Storage struct {
	mu sync.RWMutex

	users      map[model.UserID]*model.User
	challenges map[model.ChallengeID]*model.Challenge
	selections map[selectionKey]*model.WinnerSelection
}

type selectionKey struct {
	challengeID model.ChallengeID
	playerID    model.UserID
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		users:      make(map[model.UserID]*model.User),
		challenges: make(map[model.ChallengeID]*model.Challenge),
		selections: make(map[selectionKey]*model.WinnerSelection),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// SeedUser inserts a user row. Users are owned by the account service
// in production; tests seed them directly.
func (s *Storage) SeedUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *Storage) FindUser(ctx context.Context, id model.UserID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Storage) FindChallenge(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return nil, model.ErrChallengeNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (s *Storage) CreateChallenge(ctx context.Context, challenge *model.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *challenge
	s.challenges[challenge.ID] = &copied
	return nil
}

func (s *Storage) UpdateChallenge(ctx context.Context, id model.ChallengeID, patch storage.ChallengePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return model.ErrChallengeNotFound
	}
	applyPatch(challenge, patch)
	return nil
}

func applyPatch(c *model.Challenge, patch storage.ChallengePatch) {
	if patch.InviteeID != nil {
		c.InviteeID = *patch.InviteeID
	}
	if patch.IsOpen != nil {
		c.IsOpen = *patch.IsOpen
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.WinnerID != nil {
		c.WinnerID = *patch.WinnerID
	}
	if patch.UpdatedAt != nil {
		c.UpdatedAt = *patch.UpdatedAt
	}
	if patch.AcceptedAt != nil {
		c.AcceptedAt = *patch.AcceptedAt
	}
	if patch.CompletedAt != nil {
		c.CompletedAt = *patch.CompletedAt
	}
	if patch.ClaimTime != nil {
		c.ClaimTime = *patch.ClaimTime
	}
}

func (s *Storage) UpsertSelection(ctx context.Context, sel *model.WinnerSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sel
	s.selections[selectionKey{sel.ChallengeID, sel.PlayerID}] = &copied
	return nil
}

// LoadActiveSelections returns all selections whose challenge is IN_PROGRESS
func (s *Storage) LoadActiveSelections(ctx context.Context) ([]*model.WinnerSelection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.WinnerSelection
	for _, sel := range s.selections {
		challenge, ok := s.challenges[sel.ChallengeID]
		if !ok || challenge.Status != model.StatusInProgress {
			continue
		}
		copied := *sel
		result = append(result, &copied)
	}
	return result, nil
}

func (s *Storage) DeleteSelectionsFor(ctx context.Context, id model.ChallengeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.selections {
		if key.challengeID == id {
			delete(s.selections, key)
		}
	}
	return nil
}

// SelectionsFor is a test probe returning the stored selections for a challenge
func (s *Storage) SelectionsFor(id model.ChallengeID) []*model.WinnerSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*model.WinnerSelection
	for key, sel := range s.selections {
		if key.challengeID == id {
			copied := *sel
			result = append(result, &copied)
		}
	}
	return result
}

// WithTransaction calls fn directly against the store. Each call inside fn
// takes the storage mutex on its own, so fn is not isolated from concurrent
// callers, and writes made before fn returns an error are not rolled back.
func (s *Storage) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Storage) error) error {
	return fn(ctx, s)
}

// Close is a no-op for in-memory storage
func (s *Storage) Close() error {
	return nil
}
