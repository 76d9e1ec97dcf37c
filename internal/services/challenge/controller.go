// Package challenge drives the challenge lifecycle: PENDING through
// ACCEPTED and IN_PROGRESS to the COMPLETED/EXPIRED/DISPUTED terminals.
package challenge

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/clock"
	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/storage"
)

// Controller enforces the challenge state machine. It reads and writes the
// store, mirrors nominations into the cache, and never touches sockets;
// callers broadcast after a transition returns.
type Controller struct {
	storage storage.Storage
	cache   *cache.Manager
	clock   clock.Clock
	logger  *slog.Logger
}

// NewController creates a new challenge Controller
func NewController(
	storage storage.Storage,
	cacheManager *cache.Manager,
	clock clock.Clock,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		storage: storage,
		cache:   cacheManager,
		clock:   clock,
		logger:  logger.With(slog.String("component", "challenge")),
	}
}

// CreateParams are the inputs for a new challenge
type CreateParams struct {
	CreatorID   model.UserID
	InviteeID   model.UserID // empty for an open challenge
	IsOpen      bool
	Game        string
	Description string
	Rules       json.RawMessage
	Coins       int
	XP          int
}

// Create persists a new PENDING challenge with a 24h acceptance window
func (c *Controller) Create(ctx context.Context, params CreateParams) (*model.Challenge, error) {
	if params.Coins < 0 || params.XP < 0 {
		return nil, model.ErrInvalidWager
	}
	if params.IsOpen && params.InviteeID != "" {
		return nil, model.ErrInviteeForbidden
	}
	if !params.IsOpen && params.InviteeID == "" {
		return nil, model.ErrInviteeRequired
	}
	if _, err := c.storage.FindUser(ctx, params.CreatorID); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	challenge := &model.Challenge{
		ID:          model.ChallengeID(uuid.NewString()),
		CreatorID:   params.CreatorID,
		InviteeID:   params.InviteeID,
		IsOpen:      params.IsOpen,
		Game:        params.Game,
		Description: params.Description,
		Rules:       params.Rules,
		Coins:       params.Coins,
		XP:          params.XP,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(model.ChallengeExpiry),
	}

	if err := c.storage.CreateChallenge(ctx, challenge); err != nil {
		c.logger.Error("failed to create challenge",
			slog.String("creator_id", string(params.CreatorID)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.logger.Info("challenge created",
		slog.String("challenge_id", string(challenge.ID)),
		slog.String("game", challenge.Game),
		slog.Bool("open", challenge.IsOpen),
		slog.Int("coins", challenge.Coins),
	)

	return challenge, nil
}

// Get retrieves a challenge by id
func (c *Controller) Get(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	return c.storage.FindChallenge(ctx, id)
}

// Accept moves a targeted PENDING challenge to ACCEPTED. The action layer
// has already verified the acting user is the invitee.
func (c *Controller) Accept(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if expired, err := c.expireIfDue(ctx, challenge); expired || err != nil {
		if err != nil {
			return nil, err
		}
		return nil, model.ErrChallengeExpired
	}
	if challenge.Status != model.StatusPending {
		return nil, model.ErrChallengeNotPending
	}
	if !challenge.HasInvitee() {
		return nil, model.ErrInviteeRequired
	}

	now := c.clock.Now()
	status := model.StatusAccepted
	patch := storage.ChallengePatch{
		Status:     &status,
		AcceptedAt: &now,
		UpdatedAt:  &now,
	}
	if err := c.storage.UpdateChallenge(ctx, id, patch); err != nil {
		return nil, err
	}

	challenge.Status = status
	challenge.AcceptedAt = now
	challenge.UpdatedAt = now

	c.logger.Info("challenge accepted",
		slog.String("challenge_id", string(id)),
		slog.String("invitee_id", string(challenge.InviteeID)),
	)

	return challenge, nil
}

// JoinOpen claims the invitee slot of an open challenge. Preconditions are
// checked in order and the first failure wins. A repeat join by the current
// invitee succeeds without changing state so the caller can re-broadcast.
func (c *Controller) JoinOpen(ctx context.Context, id model.ChallengeID, userID model.UserID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}

	// Repeat join by the current invitee is a no-op
	if challenge.HasInvitee() && challenge.InviteeID == userID && challenge.Status == model.StatusAccepted {
		return challenge, nil
	}

	if expired, err := c.expireIfDue(ctx, challenge); expired || err != nil {
		if err != nil {
			return nil, err
		}
		return nil, model.ErrChallengeExpired
	}
	if !challenge.IsOpen || challenge.Status != model.StatusPending {
		return nil, model.ErrChallengeNotOpen
	}
	if userID == challenge.CreatorID {
		return nil, model.ErrOwnChallenge
	}
	if challenge.HasInvitee() {
		return nil, model.ErrSlotTaken
	}
	user, err := c.storage.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Coins < challenge.Coins {
		return nil, model.ErrInsufficientCoins
	}

	now := c.clock.Now()
	status := model.StatusAccepted
	closed := false
	patch := storage.ChallengePatch{
		InviteeID:  &userID,
		IsOpen:     &closed,
		Status:     &status,
		AcceptedAt: &now,
		UpdatedAt:  &now,
	}
	if err := c.storage.UpdateChallenge(ctx, id, patch); err != nil {
		return nil, err
	}

	challenge.InviteeID = userID
	challenge.IsOpen = false
	challenge.Status = status
	challenge.AcceptedAt = now
	challenge.UpdatedAt = now

	c.logger.Info("open challenge joined",
		slog.String("challenge_id", string(id)),
		slog.String("invitee_id", string(userID)),
	)

	return challenge, nil
}

// Start moves an ACCEPTED challenge to IN_PROGRESS. Only the invitee may
// start, and both participants must be online.
func (c *Controller) Start(ctx context.Context, id model.ChallengeID, userID model.UserID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != challenge.InviteeID {
		return nil, model.ErrNotInvitee
	}

	// Record the invitee's touch; a failed attempt leaves a partial
	// handshake for the janitor to evict
	c.cache.MarkStarted(id, false, c.clock.Now())

	if _, online := c.cache.FindByUser(challenge.CreatorID); !online {
		return nil, model.ErrOpponentOffline
	}
	if _, online := c.cache.FindByUser(challenge.InviteeID); !online {
		return nil, model.ErrOpponentOffline
	}
	if challenge.Status != model.StatusAccepted {
		return nil, model.ErrNotAccepted
	}

	now := c.clock.Now()
	status := model.StatusInProgress
	patch := storage.ChallengePatch{
		Status:    &status,
		UpdatedAt: &now,
	}
	if err := c.storage.UpdateChallenge(ctx, id, patch); err != nil {
		return nil, err
	}

	// Any half-finished handshake from an earlier attempt is now moot
	c.cache.ClearStart(id)

	challenge.Status = status
	challenge.UpdatedAt = now

	c.logger.Info("challenge started",
		slog.String("challenge_id", string(id)),
		slog.String("started_by", string(userID)),
	)

	return challenge, nil
}

// SelectWinner upserts a participant's winner nomination, store first and
// cache second. The challenge status is never touched here.
func (c *Controller) SelectWinner(ctx context.Context, id model.ChallengeID, playerID, winnerID model.UserID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.Status != model.StatusInProgress {
		return nil, model.ErrNotInProgress
	}
	if !challenge.IsParticipant(playerID) || !challenge.IsParticipant(winnerID) {
		return nil, model.ErrNotParticipant
	}

	sel := &model.WinnerSelection{
		ChallengeID:    id,
		PlayerID:       playerID,
		SelectedWinner: winnerID,
		UpdatedAt:      c.clock.Now(),
	}
	if err := c.storage.UpsertSelection(ctx, sel); err != nil {
		return nil, err
	}
	c.cache.SetNomination(id, playerID, winnerID)

	c.logger.Info("winner selected",
		slog.String("challenge_id", string(id)),
		slog.String("player_id", string(playerID)),
		slog.String("winner_id", string(winnerID)),
	)

	return challenge, nil
}

// ClaimVictory applies the consensus gate. When both nominations exist and
// agree, the challenge completes and its selections are purged in a single
// transaction; otherwise the matching sentinel error is returned and the
// challenge stays IN_PROGRESS.
func (c *Controller) ClaimVictory(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if challenge.Status != model.StatusInProgress {
		return nil, model.ErrNotInProgress
	}

	noms := c.cache.Nominations(id)
	winner, err := Consensus(noms, challenge.CreatorID, challenge.InviteeID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	status := model.StatusCompleted
	patch := storage.ChallengePatch{
		Status:      &status,
		WinnerID:    &winner,
		CompletedAt: &now,
		ClaimTime:   &now,
		UpdatedAt:   &now,
	}
	err = c.storage.WithTransaction(ctx, func(ctx context.Context, tx storage.Storage) error {
		if err := tx.UpdateChallenge(ctx, id, patch); err != nil {
			return err
		}
		return tx.DeleteSelectionsFor(ctx, id)
	})
	if err != nil {
		c.logger.Error("failed to complete challenge",
			slog.String("challenge_id", string(id)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	c.cache.DropNominations(id)
	c.cache.ClearStart(id)

	challenge.Status = status
	challenge.WinnerID = winner
	challenge.CompletedAt = now
	challenge.ClaimTime = now
	challenge.UpdatedAt = now

	c.logger.Info("challenge completed",
		slog.String("challenge_id", string(id)),
		slog.String("winner_id", string(winner)),
	)

	return challenge, nil
}

// Dispute is the administrative transition pulling a non-terminal challenge
// out of play. It is deliberately not reachable from any socket message.
func (c *Controller) Dispute(ctx context.Context, id model.ChallengeID) (*model.Challenge, error) {
	challenge, err := c.storage.FindChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if !challenge.Status.CanTransitionTo(model.StatusDisputed) {
		return nil, model.ErrChallengeTerminal
	}

	now := c.clock.Now()
	status := model.StatusDisputed
	patch := storage.ChallengePatch{
		Status:    &status,
		UpdatedAt: &now,
	}
	err = c.storage.WithTransaction(ctx, func(ctx context.Context, tx storage.Storage) error {
		if err := tx.UpdateChallenge(ctx, id, patch); err != nil {
			return err
		}
		return tx.DeleteSelectionsFor(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	c.cache.DropNominations(id)
	c.cache.ClearStart(id)

	challenge.Status = status
	challenge.UpdatedAt = now

	c.logger.Warn("challenge disputed", slog.String("challenge_id", string(id)))

	return challenge, nil
}

// expireIfDue lazily settles a PENDING challenge whose acceptance window has
// closed. Expiry is driven by observation, not by a timer.
func (c *Controller) expireIfDue(ctx context.Context, challenge *model.Challenge) (bool, error) {
	if !challenge.ExpiredBy(c.clock.Now()) {
		return false, nil
	}
	now := c.clock.Now()
	status := model.StatusExpired
	patch := storage.ChallengePatch{
		Status:    &status,
		UpdatedAt: &now,
	}
	if err := c.storage.UpdateChallenge(ctx, challenge.ID, patch); err != nil {
		return false, err
	}
	challenge.Status = status
	challenge.UpdatedAt = now

	c.logger.Info("challenge expired", slog.String("challenge_id", string(challenge.ID)))
	return true, nil
}
