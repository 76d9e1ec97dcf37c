package challenge

import "github.com/playrival/rival-server/internal/model"

// Consensus applies the two-player agreement rule over a nomination map.
// It is a pure function so the same check serves handlers, diagnostics,
// and tests.
//
// Both participants must have nominated, and their nominations must match;
// the agreed winner is returned. Otherwise ErrSelectionsMissing or
// ErrSelectionsDisagree.
func Consensus(noms model.NominationMap, creator, invitee model.UserID) (model.UserID, error) {
	creatorPick, hasCreator := noms[creator]
	inviteePick, hasInvitee := noms[invitee]
	if !hasCreator || !hasInvitee {
		return "", model.ErrSelectionsMissing
	}
	if creatorPick != inviteePick {
		return "", model.ErrSelectionsDisagree
	}
	return creatorPick, nil
}
