// Package cache holds the process-local mirrors of live state: the online
// roster, per-challenge start handshakes, and per-challenge winner
// nominations. The store stays authoritative; this cache is rebuilt from it
// on startup.
package cache

import (
	"sync"
	"time"

	"github.com/playrival/rival-server/internal/model"
)

// MaxConnections bounds the online roster; FindByConn is a linear scan and
// stays cheap under this cap.
const MaxConnections = 10000

// Conn identifies a live connection. The cache never performs I/O on it;
// it only stores handles and compares them for identity, so any comparable
// type (in practice *ws.Client) works.
type Conn any

// OnlineEntry is one user's presence record
type OnlineEntry struct {
	UserID      model.UserID
	Name        string
	Conn        Conn
	ConnectedAt time.Time
}

// StartProgress is the transient per-challenge record used while moving
// from ACCEPTED to IN_PROGRESS. Evicted by the janitor when stale.
type StartProgress struct {
	CreatorStarted bool
	InviteeStarted bool
	FirstTouchAt   time.Time
}

// Manager owns the three cache maps behind a single mutex. Operations are
// total: absence is reported, never raised. The mutex is held only for map
// reads and writes, never across store calls or socket sends.
type Manager struct {
	mu sync.Mutex

	online      map[model.UserID]OnlineEntry
	starts      map[model.ChallengeID]StartProgress
	nominations map[model.ChallengeID]model.NominationMap
}

// NewManager creates an empty cache manager
func NewManager() *Manager {
	return &Manager{
		online:      make(map[model.UserID]OnlineEntry),
		starts:      make(map[model.ChallengeID]StartProgress),
		nominations: make(map[model.ChallengeID]model.NominationMap),
	}
}

// Presence operations

// SetOnline binds a connection to a user id, replacing any prior binding.
// The replaced connection is returned so the caller can abandon it; there
// is at most one live socket per user at any time.
func (m *Manager) SetOnline(id model.UserID, name string, conn Conn, now time.Time) (Conn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior, had := m.online[id]
	m.online[id] = OnlineEntry{UserID: id, Name: name, Conn: conn, ConnectedAt: now}
	if had && prior.Conn != conn {
		return prior.Conn, true
	}
	return nil, false
}

// RemoveByUser evicts the binding for a user id
func (m *Manager) RemoveByUser(id model.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.online[id]
	delete(m.online, id)
	return ok
}

// RemoveByConn evicts the binding holding the given connection and returns
// the entry it was bound to. A connection replaced by a newer setOnline
// no longer appears here, so its close is a no-op.
func (m *Manager) RemoveByConn(conn Conn) (OnlineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.online {
		if entry.Conn == conn {
			delete(m.online, id)
			return entry, true
		}
	}
	return OnlineEntry{}, false
}

// FindByUser returns the presence entry for a user id
func (m *Manager) FindByUser(id model.UserID) (OnlineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.online[id]
	return entry, ok
}

// FindByConn returns the presence entry holding the given connection
func (m *Manager) FindByConn(conn Conn) (OnlineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.online {
		if entry.Conn == conn {
			return entry, true
		}
	}
	return OnlineEntry{}, false
}

// OnlineUsers returns a snapshot of every presence entry
func (m *Manager) OnlineUsers() []OnlineEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]OnlineEntry, 0, len(m.online))
	for _, entry := range m.online {
		users = append(users, entry)
	}
	return users
}

// Count returns the number of online users
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.online)
}

// Start-handshake operations

// MarkStarted records one side's start touch for a challenge
func (m *Manager) MarkStarted(id model.ChallengeID, creator bool, now time.Time) StartProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	progress, ok := m.starts[id]
	if !ok {
		progress = StartProgress{FirstTouchAt: now}
	}
	if creator {
		progress.CreatorStarted = true
	} else {
		progress.InviteeStarted = true
	}
	m.starts[id] = progress
	return progress
}

// StartState returns the handshake progress for a challenge
func (m *Manager) StartState(id model.ChallengeID) (StartProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	progress, ok := m.starts[id]
	return progress, ok
}

// ClearStart drops the handshake record for a challenge
func (m *Manager) ClearStart(id model.ChallengeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.starts, id)
}

// EvictStaleStarts drops handshake records older than maxAge and returns
// how many were evicted
func (m *Manager) EvictStaleStarts(now time.Time, maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, progress := range m.starts {
		if now.Sub(progress.FirstTouchAt) > maxAge {
			delete(m.starts, id)
			evicted++
		}
	}
	return evicted
}

// Nomination operations

// SetNomination records a player's winner pick for a challenge, overwriting
// any previous pick by the same player
func (m *Manager) SetNomination(id model.ChallengeID, player, winner model.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	noms, ok := m.nominations[id]
	if !ok {
		noms = make(model.NominationMap)
		m.nominations[id] = noms
	}
	noms[player] = winner
}

// Nominations returns a copy of the nomination map for a challenge
func (m *Manager) Nominations(id model.ChallengeID) model.NominationMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	noms := m.nominations[id]
	copied := make(model.NominationMap, len(noms))
	for player, winner := range noms {
		copied[player] = winner
	}
	return copied
}

// DropNominations removes all cached picks for a challenge
func (m *Manager) DropNominations(id model.ChallengeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nominations, id)
}

// SeedNominations replaces the nomination cache with the given selections.
// Used at startup to rebuild from the store.
func (m *Manager) SeedNominations(selections []*model.WinnerSelection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nominations = make(map[model.ChallengeID]model.NominationMap)
	for _, sel := range selections {
		noms, ok := m.nominations[sel.ChallengeID]
		if !ok {
			noms = make(model.NominationMap)
			m.nominations[sel.ChallengeID] = noms
		}
		noms[sel.PlayerID] = sel.SelectedWinner
	}
}

// AllNominations returns a copy of every cached nomination map
func (m *Manager) AllNominations() map[model.ChallengeID]model.NominationMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[model.ChallengeID]model.NominationMap, len(m.nominations))
	for id, noms := range m.nominations {
		inner := make(model.NominationMap, len(noms))
		for player, winner := range noms {
			inner[player] = winner
		}
		copied[id] = inner
	}
	return copied
}
