package model

import "time"

// WinnerSelection is one participant's declaration of who they believe won.
// There is at most one row per (challenge, player); repeated selections
// overwrite.
type WinnerSelection struct {
	ChallengeID    ChallengeID
	PlayerID       UserID
	SelectedWinner UserID
	UpdatedAt      time.Time
}

// NominationMap is the per-challenge view of selections: player -> chosen winner
type NominationMap map[UserID]UserID
