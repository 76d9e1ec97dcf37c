package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/services/challenge"
)

// Human-readable reasons for the typed failure frames
const (
	reasonOpponentOffline  = "Opponent is Offline"
	reasonSelectionsNeeded = "Both players must select a winner before victory can be claimed"
	reasonDisagreement     = "Players disagree on the winner. Reselect and claim again"
)

func (h *Hub) handleSetOnline(client *Client, data []byte) error {
	var payload setOnlinePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid setOnline payload: %w", err)
	}
	if payload.UserID == "" {
		return errors.New("setOnline requires a userId")
	}

	ctx := context.Background()

	if !payload.Online {
		if h.cache.RemoveByUser(payload.UserID) {
			h.logger.Info("user went offline", slog.String("user_id", string(payload.UserID)))
			h.broadcaster.ToAll(newOnlineUsersFrame(h.cache.OnlineUsers()))
		}
		return nil
	}

	user, err := h.storage.FindUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("setOnline lookup failed: %w", err)
	}

	replaced, had := h.cache.SetOnline(user.ID, user.Name, client, h.clock.Now())
	if had {
		if prior, ok := replaced.(*Client); ok {
			prior.logger.Info("presence rebound to newer connection",
				slog.String("user_id", string(user.ID)))
		}
	}

	client.logger.Info("user online",
		slog.String("user_id", string(user.ID)),
		slog.String("name", user.Name))

	h.broadcaster.ToAll(newOnlineUsersFrame(h.cache.OnlineUsers()))
	return nil
}

func (h *Hub) handleCreateChallenge(client *Client, data []byte) error {
	var payload createChallengePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid createChallenge payload: %w", err)
	}

	created, err := h.controller.Create(context.Background(), challenge.CreateParams{
		CreatorID:   payload.CreatorID,
		InviteeID:   payload.InviteeID,
		IsOpen:      payload.IsOpen,
		Game:        payload.Game,
		Description: payload.Description,
		Rules:       payload.Rules,
		Coins:       payload.Coins,
		XP:          payload.XP,
	})
	if err != nil {
		return err
	}

	noms := h.cache.Nominations(created.ID)
	if created.IsOpen {
		h.broadcaster.ToAll(newChallengeFrame(MsgOpenChallengeCreated, created, noms))
	} else {
		h.broadcaster.ToParticipants(newChallengeFrame(MsgChallengeCreated, created, noms), created)
	}
	return nil
}

func (h *Hub) handleAcceptChallenge(client *Client, data []byte) error {
	var payload acceptChallengePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid acceptChallenge payload: %w", err)
	}
	if payload.ChallengeID == "" {
		return errors.New("acceptChallenge requires a challengeId")
	}

	accepted, err := h.controller.Accept(context.Background(), payload.ChallengeID)
	if err != nil {
		return err
	}

	frame := newChallengeFrame(MsgChallengeAccepted, accepted, h.cache.Nominations(accepted.ID))
	h.broadcaster.ToParticipants(frame, accepted)
	return nil
}

func (h *Hub) handleJoinOpenChallenge(client *Client, data []byte) error {
	var payload joinOpenChallengePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid joinOpenChallenge payload: %w", err)
	}
	if payload.ChallengeID == "" || payload.UserID == "" {
		return errors.New("joinOpenChallenge requires challengeId and userId")
	}

	joined, err := h.controller.JoinOpen(context.Background(), payload.ChallengeID, payload.UserID)
	if err != nil {
		if reason, ok := joinFailureReason(err); ok {
			client.Send(newFailureFrame(MsgJoinOpenChallengeFailed, reason))
			return nil
		}
		return err
	}

	frame := newChallengeFrame(MsgChallengeAccepted, joined, h.cache.Nominations(joined.ID))
	h.broadcaster.ToParticipants(frame, joined)
	return nil
}

// joinFailureReason maps join preconditions to the reason string sent back
// to the originator. Unmapped errors fall through to the generic error frame.
func joinFailureReason(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrChallengeNotFound):
		return "Challenge not found", true
	case errors.Is(err, model.ErrChallengeNotOpen):
		return "Challenge is not open for joining", true
	case errors.Is(err, model.ErrChallengeExpired):
		return "Challenge has expired", true
	case errors.Is(err, model.ErrOwnChallenge):
		return "You cannot join your own challenge", true
	case errors.Is(err, model.ErrSlotTaken):
		return "Challenge already has an opponent", true
	case errors.Is(err, model.ErrUserNotFound):
		return "User not found", true
	case errors.Is(err, model.ErrInsufficientCoins):
		return "Insufficient coins to cover the wager", true
	}
	return "", false
}

func (h *Hub) handleStartChallenge(client *Client, data []byte) error {
	var payload startChallengePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid startChallenge payload: %w", err)
	}
	if payload.ChallengeID == "" || payload.UserID == "" {
		return errors.New("startChallenge requires challengeId and userId")
	}

	started, err := h.controller.Start(context.Background(), payload.ChallengeID, payload.UserID)
	if err != nil {
		if reason, ok := startFailureReason(err); ok {
			client.Send(newFailureFrame(MsgFailedToStartChallenge, reason))
			return nil
		}
		return err
	}

	frame := newChallengeFrame(MsgChallengeStartedBy, started, h.cache.Nominations(started.ID))
	frame.StartedBy = payload.UserID
	h.broadcaster.ToParticipants(frame, started)
	return nil
}

func startFailureReason(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrChallengeNotFound):
		return "Challenge not found", true
	case errors.Is(err, model.ErrNotInvitee):
		return "Only the invited player can start the challenge", true
	case errors.Is(err, model.ErrOpponentOffline):
		return reasonOpponentOffline, true
	case errors.Is(err, model.ErrNotAccepted):
		return "Challenge is not in an accepted state", true
	}
	return "", false
}

func (h *Hub) handleSelectWinner(client *Client, data []byte) error {
	var payload selectWinnerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid selectWinner payload: %w", err)
	}
	challengeID := payload.challengeID()
	winnerID := payload.winnerID()
	if challengeID == "" || payload.PlayerID == "" || winnerID == "" {
		return errors.New("selectWinner requires challengeId, playerId and winnerId")
	}

	updated, err := h.controller.SelectWinner(context.Background(), challengeID, payload.PlayerID, winnerID)
	if err != nil {
		return err
	}

	frame := newChallengeFrame(MsgChallengeUpdate, updated, h.cache.Nominations(updated.ID))
	h.broadcaster.ToParticipants(frame, updated)
	return nil
}

func (h *Hub) handleClaimVictory(client *Client, data []byte) error {
	var payload claimVictoryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("invalid claimVictory payload: %w", err)
	}
	if payload.ChallengeID == "" {
		return errors.New("claimVictory requires a challengeId")
	}

	ctx := context.Background()
	completed, err := h.controller.ClaimVictory(ctx, payload.ChallengeID)
	if err != nil {
		if reason, ok := claimFailureReason(err); ok {
			// Consensus failures go to both participants so they can reselect
			current, getErr := h.controller.Get(ctx, payload.ChallengeID)
			if getErr != nil {
				return getErr
			}
			h.broadcaster.ToParticipants(newFailureFrame(MsgClaimVictoryFailed, reason), current)
			return nil
		}
		return err
	}

	frame := newChallengeFrame(MsgChallengeCompleted, completed, model.NominationMap{})
	h.broadcaster.ToParticipants(frame, completed)
	return nil
}

func claimFailureReason(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrSelectionsMissing):
		return reasonSelectionsNeeded, true
	case errors.Is(err, model.ErrSelectionsDisagree):
		return reasonDisagreement, true
	case errors.Is(err, model.ErrNotInProgress):
		return "Challenge is not in progress", true
	}
	return "", false
}

func (h *Hub) handleGetWinnerSelections(client *Client) error {
	client.Send(allSelectionsFrame{
		Type:       MsgAllWinnerSelections,
		Selections: h.cache.AllNominations(),
	})
	return nil
}
