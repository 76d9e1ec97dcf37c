package ws

import (
	"encoding/json"
	"time"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/model"
)

// Inbound message types
const (
	MsgSetOnline           = "setOnline"
	MsgCreateChallenge     = "createChallenge"
	MsgAcceptChallenge     = "acceptChallenge"
	MsgJoinOpenChallenge   = "joinOpenChallenge"
	MsgStartChallenge      = "startChallenge"
	MsgSelectWinner        = "selectWinner"
	MsgClaimVictory        = "claimVictory"
	MsgGetWinnerSelections = "getWinnerSelections"
)

// Outbound message types
const (
	MsgOnlineUsers             = "onlineUsers"
	MsgChallengeCreated        = "challengeCreated"
	MsgOpenChallengeCreated    = "openChallengeCreated"
	MsgChallengeAccepted       = "challengeAccepted"
	MsgChallengeStartedBy      = "challengeStartedBy"
	MsgChallengeUpdate         = "challengeUpdate"
	MsgChallengeCompleted      = "challengeCompleted"
	MsgAllWinnerSelections     = "allWinnerSelections"
	MsgJoinOpenChallengeFailed = "joinOpenChallengeFailed"
	MsgFailedToStartChallenge  = "failedToStartChallenge"
	MsgClaimVictoryFailed      = "claimVictoryFailed"
	MsgError                   = "error"
)

// envelope carries the discriminator; payloads re-parse the full frame
type envelope struct {
	Type string `json:"type"`
}

// Inbound payloads

type setOnlinePayload struct {
	UserID model.UserID `json:"userId"`
	Online bool         `json:"online"`
}

type createChallengePayload struct {
	CreatorID   model.UserID    `json:"creatorId"`
	InviteeID   model.UserID    `json:"inviteeId"`
	IsOpen      bool            `json:"isOpen"`
	Game        string          `json:"game"`
	Description string          `json:"description"`
	Rules       json.RawMessage `json:"rules"`
	Coins       int             `json:"coins"`
	XP          int             `json:"xp"`
}

type acceptChallengePayload struct {
	ChallengeID model.ChallengeID `json:"challengeId"`
}

type joinOpenChallengePayload struct {
	ChallengeID model.ChallengeID `json:"challengeId"`
	UserID      model.UserID      `json:"userId"`
}

type startChallengePayload struct {
	ChallengeID model.ChallengeID `json:"challengeId"`
	UserID      model.UserID      `json:"userId"`
}

// selectWinnerPayload accepts the legacy gameId/selectedWinner aliases still
// sent by older clients
type selectWinnerPayload struct {
	ChallengeID    model.ChallengeID `json:"challengeId"`
	GameID         model.ChallengeID `json:"gameId"`
	PlayerID       model.UserID      `json:"playerId"`
	WinnerID       model.UserID      `json:"winnerId"`
	SelectedWinner model.UserID      `json:"selectedWinner"`
}

func (p *selectWinnerPayload) challengeID() model.ChallengeID {
	if p.ChallengeID != "" {
		return p.ChallengeID
	}
	return p.GameID
}

func (p *selectWinnerPayload) winnerID() model.UserID {
	if p.WinnerID != "" {
		return p.WinnerID
	}
	return p.SelectedWinner
}

type claimVictoryPayload struct {
	ChallengeID model.ChallengeID `json:"challengeId"`
}

// Outbound frames

type onlineUserJSON struct {
	ID   model.UserID `json:"id"`
	Name string       `json:"name"`
}

type onlineUsersFrame struct {
	Type  string           `json:"type"`
	Users []onlineUserJSON `json:"users"`
}

func newOnlineUsersFrame(entries []cache.OnlineEntry) onlineUsersFrame {
	users := make([]onlineUserJSON, 0, len(entries))
	for _, entry := range entries {
		users = append(users, onlineUserJSON{ID: entry.UserID, Name: entry.Name})
	}
	return onlineUsersFrame{Type: MsgOnlineUsers, Users: users}
}

// challengeJSON is the enriched challenge payload attached to every frame
// that carries a challenge: the persisted fields plus the nomination map as
// it stood at the instant of broadcast.
type challengeJSON struct {
	ID          model.ChallengeID     `json:"id"`
	CreatorID   model.UserID          `json:"creatorId"`
	InviteeID   model.UserID          `json:"inviteeId,omitempty"`
	IsOpen      bool                  `json:"isOpen"`
	Game        string                `json:"game"`
	Description string                `json:"description,omitempty"`
	Rules       json.RawMessage       `json:"rules,omitempty"`
	Coins       int                   `json:"coins"`
	XP          int                   `json:"xp"`
	Status      model.ChallengeStatus `json:"status"`
	WinnerID    model.UserID          `json:"winnerId,omitempty"`

	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	AcceptedAt  time.Time `json:"acceptedAt,omitzero"`
	ExpiresAt   time.Time `json:"expiresAt,omitzero"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
	ClaimTime   time.Time `json:"claimTime,omitzero"`

	WinnerSelections model.NominationMap `json:"winnerSelections"`
}

type challengeFrame struct {
	Type      string        `json:"type"`
	Challenge challengeJSON `json:"challenge"`
	StartedBy model.UserID  `json:"startedBy,omitempty"`
}

func newChallengeFrame(frameType string, challenge *model.Challenge, noms model.NominationMap) challengeFrame {
	if noms == nil {
		noms = model.NominationMap{}
	}
	return challengeFrame{
		Type: frameType,
		Challenge: challengeJSON{
			ID:               challenge.ID,
			CreatorID:        challenge.CreatorID,
			InviteeID:        challenge.InviteeID,
			IsOpen:           challenge.IsOpen,
			Game:             challenge.Game,
			Description:      challenge.Description,
			Rules:            challenge.Rules,
			Coins:            challenge.Coins,
			XP:               challenge.XP,
			Status:           challenge.Status,
			WinnerID:         challenge.WinnerID,
			CreatedAt:        challenge.CreatedAt,
			UpdatedAt:        challenge.UpdatedAt,
			AcceptedAt:       challenge.AcceptedAt,
			ExpiresAt:        challenge.ExpiresAt,
			CompletedAt:      challenge.CompletedAt,
			ClaimTime:        challenge.ClaimTime,
			WinnerSelections: noms,
		},
	}
}

type allSelectionsFrame struct {
	Type       string                                      `json:"type"`
	Selections map[model.ChallengeID]model.NominationMap `json:"selections"`
}

type failureFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newFailureFrame(frameType, message string) failureFrame {
	return failureFrame{Type: frameType, Message: message}
}
