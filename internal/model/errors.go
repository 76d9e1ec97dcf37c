package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Challenge errors
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeNotOpen    = errors.New("challenge is not open")
	ErrChallengeNotPending = errors.New("challenge is not pending")
	ErrChallengeExpired    = errors.New("challenge has expired")
	ErrChallengeTerminal   = errors.New("challenge is already settled")
	ErrInvalidWager        = errors.New("wager must not be negative")
	ErrInviteeRequired     = errors.New("invitee required for a targeted challenge")
	ErrInviteeForbidden    = errors.New("open challenge must not name an invitee")

	// Join errors
	ErrOwnChallenge      = errors.New("creator cannot join their own challenge")
	ErrSlotTaken         = errors.New("challenge already has an invitee")
	ErrInsufficientCoins = errors.New("insufficient coins to cover the wager")

	// Start errors
	ErrNotInvitee      = errors.New("only the invitee may start the challenge")
	ErrNotAccepted     = errors.New("challenge is not in an accepted state")
	ErrOpponentOffline = errors.New("opponent is offline")

	// Victory errors
	ErrSelectionsMissing  = errors.New("both players must select a winner")
	ErrSelectionsDisagree = errors.New("players disagree on the winner")
	ErrNotInProgress      = errors.New("challenge is not in progress")
	ErrNotParticipant     = errors.New("user is not a participant in this challenge")
)
