package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/mocks"
	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/services/challenge"
	"github.com/playrival/rival-server/internal/storage/memory"
	"github.com/playrival/rival-server/internal/testutil"
)

type HubSuite struct {
	suite.Suite
	storage *memory.Storage
	cache   *cache.Manager
	clock   *mocks.MockClock
	hub     *Hub
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.storage = memory.New()
	s.cache = cache.NewManager()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := testutil.NopLogger()
	controller := challenge.NewController(s.storage, s.cache, s.clock, logger)
	s.hub = NewHub(s.storage, s.cache, controller, s.clock, logger)

	s.storage.SeedUser(&model.User{ID: "u1", Name: "Alice", Coins: 100})
	s.storage.SeedUser(&model.User{ID: "u2", Name: "Bob", Coins: 100})
	s.storage.SeedUser(&model.User{ID: "u3", Name: "Carol", Coins: 20})
	s.storage.SeedUser(&model.User{ID: "u4", Name: "Dave", Coins: 100})
}

// connect fabricates a registered connection without a real socket; frames
// land in the client's send buffer
func (s *HubSuite) connect() *Client {
	client := newClient(s.hub, nil, testutil.NopLogger())
	s.hub.mu.Lock()
	s.hub.clients[client] = true
	s.hub.mu.Unlock()
	return client
}

func (s *HubSuite) online(client *Client, userID string) {
	s.send(client, map[string]any{"type": MsgSetOnline, "userId": userID, "online": true})
}

func (s *HubSuite) send(client *Client, frame map[string]any) {
	data, err := json.Marshal(frame)
	s.Require().NoError(err)
	s.hub.route(client, data)
}

// frames drains and decodes everything queued for the client
func (s *HubSuite) frames(client *Client) []map[string]any {
	var out []map[string]any
	for {
		select {
		case data := <-client.send:
			var decoded map[string]any
			s.Require().NoError(json.Unmarshal(data, &decoded))
			out = append(out, decoded)
		default:
			return out
		}
	}
}

// lastOfType returns the most recent queued frame with the given type
func (s *HubSuite) lastOfType(client *Client, frameType string) map[string]any {
	var match map[string]any
	for _, frame := range s.frames(client) {
		if frame["type"] == frameType {
			match = frame
		}
	}
	s.Require().NotNil(match, "expected a %s frame", frameType)
	return match
}

func challengeID(frame map[string]any) model.ChallengeID {
	payload, _ := frame["challenge"].(map[string]any)
	id, _ := payload["id"].(string)
	return model.ChallengeID(id)
}

// Presence tests

func (s *HubSuite) TestSetOnlineBroadcastsRoster() {
	alice := s.connect()
	bob := s.connect()

	s.online(alice, "u1")
	s.online(bob, "u2")

	roster := s.lastOfType(alice, MsgOnlineUsers)
	users, ok := roster["users"].([]any)
	s.Require().True(ok)
	s.Len(users, 2)
}

func (s *HubSuite) TestSetOnlineUnknownUserGetsErrorFrame() {
	client := s.connect()

	s.send(client, map[string]any{"type": MsgSetOnline, "userId": "ghost", "online": true})

	frame := s.lastOfType(client, MsgError)
	s.Equal("Failed to process message", frame["message"])
	s.Equal(0, s.cache.Count())
}

func (s *HubSuite) TestSetOnlineReplacesPriorSocket() {
	first := s.connect()
	second := s.connect()

	s.online(first, "u1")
	s.online(second, "u1")

	s.Equal(1, s.cache.Count())
	entry, ok := s.cache.FindByUser("u1")
	s.Require().True(ok)
	s.Equal(cache.Conn(second), entry.Conn)

	// The abandoned socket's close does not disturb the roster
	s.hub.unregister(first)
	s.Equal(1, s.cache.Count())
}

func (s *HubSuite) TestUnregisterEvictsBindingAndBroadcasts() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")
	s.frames(alice)
	s.frames(bob)

	s.hub.unregister(bob)

	s.Equal(1, s.cache.Count())
	roster := s.lastOfType(alice, MsgOnlineUsers)
	users, ok := roster["users"].([]any)
	s.Require().True(ok)
	s.Len(users, 1)
}

// Router tests

func (s *HubSuite) TestMalformedJSONIsDropped() {
	client := s.connect()

	s.hub.route(client, []byte("{not json"))

	s.Empty(s.frames(client))
}

func (s *HubSuite) TestUnknownTypeIsIgnored() {
	client := s.connect()

	s.send(client, map[string]any{"type": "noSuchThing", "whatever": 1})

	s.Empty(s.frames(client))
}

func (s *HubSuite) TestHandlerErrorBecomesErrorFrame() {
	client := s.connect()

	s.send(client, map[string]any{"type": MsgAcceptChallenge, "challengeId": "nonexistent"})

	frame := s.lastOfType(client, MsgError)
	s.Equal("Failed to process message", frame["message"])
}

// Challenge flow tests

func (s *HubSuite) TestCreateTargetedChallengeNotifiesParticipants() {
	alice := s.connect()
	bob := s.connect()
	carol := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")
	s.online(carol, "u3")
	s.frames(alice)
	s.frames(bob)
	s.frames(carol)

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10, "isOpen": false,
	})

	s.lastOfType(alice, MsgChallengeCreated)
	s.lastOfType(bob, MsgChallengeCreated)
	s.Empty(s.frames(carol))
}

func (s *HubSuite) TestCreateOpenChallengeNotifiesEveryone() {
	alice := s.connect()
	carol := s.connect()
	s.online(alice, "u1")
	s.online(carol, "u3")
	s.frames(alice)
	s.frames(carol)

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1",
		"game": "Valorant", "coins": 50, "isOpen": true,
	})

	frame := s.lastOfType(carol, MsgOpenChallengeCreated)
	payload, ok := frame["challenge"].(map[string]any)
	s.Require().True(ok)
	s.Equal(true, payload["isOpen"])
	s.lastOfType(alice, MsgOpenChallengeCreated)
}

func (s *HubSuite) TestJoinOpenChallengeFailureGoesToOriginatorOnly() {
	alice := s.connect()
	carol := s.connect()
	s.online(alice, "u1")
	s.online(carol, "u3")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1",
		"game": "Valorant", "coins": 50, "isOpen": true,
	})
	id := challengeID(s.lastOfType(alice, MsgOpenChallengeCreated))
	s.frames(carol)

	// Carol has 20 coins against a 50 coin wager
	s.send(carol, map[string]any{
		"type": MsgJoinOpenChallenge, "challengeId": string(id), "userId": "u3",
	})

	frame := s.lastOfType(carol, MsgJoinOpenChallengeFailed)
	s.Contains(frame["message"], "Insufficient coins")
	s.Empty(s.frames(alice))
}

func (s *HubSuite) TestJoinOpenChallengeSuccess() {
	alice := s.connect()
	dave := s.connect()
	s.online(alice, "u1")
	s.online(dave, "u4")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1",
		"game": "Valorant", "coins": 50, "isOpen": true,
	})
	id := challengeID(s.lastOfType(alice, MsgOpenChallengeCreated))
	s.frames(dave)

	s.send(dave, map[string]any{
		"type": MsgJoinOpenChallenge, "challengeId": string(id), "userId": "u4",
	})

	for _, client := range []*Client{alice, dave} {
		frame := s.lastOfType(client, MsgChallengeAccepted)
		payload, ok := frame["challenge"].(map[string]any)
		s.Require().True(ok)
		s.Equal("u4", payload["inviteeId"])
		s.Equal(false, payload["isOpen"])
		s.Equal(string(model.StatusAccepted), payload["status"])
	}
}

func (s *HubSuite) TestStartBlockedByOfflineOpponent() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10,
	})
	id := challengeID(s.lastOfType(bob, MsgChallengeCreated))
	s.send(bob, map[string]any{"type": MsgAcceptChallenge, "challengeId": string(id)})

	// Alice drops off before the start
	s.hub.unregister(alice)
	s.frames(bob)

	s.send(bob, map[string]any{
		"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2",
	})
	frame := s.lastOfType(bob, MsgFailedToStartChallenge)
	s.Equal("Opponent is Offline", frame["message"])

	// Alice reconnects; the retry succeeds
	alice = s.connect()
	s.online(alice, "u1")
	s.send(bob, map[string]any{
		"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2",
	})
	started := s.lastOfType(bob, MsgChallengeStartedBy)
	s.Equal("u2", started["startedBy"])
}

func (s *HubSuite) TestHappyPathToCompletion() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10, "xp": 0, "isOpen": false,
	})
	created := s.lastOfType(bob, MsgChallengeCreated)
	id := challengeID(created)
	s.Require().NotEmpty(id)

	s.send(bob, map[string]any{"type": MsgAcceptChallenge, "challengeId": string(id)})
	accepted := s.lastOfType(alice, MsgChallengeAccepted)
	payload, _ := accepted["challenge"].(map[string]any)
	s.Equal(string(model.StatusAccepted), payload["status"])

	s.send(bob, map[string]any{
		"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2",
	})
	started := s.lastOfType(alice, MsgChallengeStartedBy)
	payload, _ = started["challenge"].(map[string]any)
	s.Equal(string(model.StatusInProgress), payload["status"])

	s.send(alice, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u1", "winnerId": "u1",
	})
	s.send(bob, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u2", "winnerId": "u1",
	})

	update := s.lastOfType(alice, MsgChallengeUpdate)
	payload, _ = update["challenge"].(map[string]any)
	selections, ok := payload["winnerSelections"].(map[string]any)
	s.Require().True(ok)
	s.Equal("u1", selections["u1"])
	s.Equal("u1", selections["u2"])

	s.send(bob, map[string]any{"type": MsgClaimVictory, "challengeId": string(id)})

	for _, client := range []*Client{alice, bob} {
		completed := s.lastOfType(client, MsgChallengeCompleted)
		payload, _ = completed["challenge"].(map[string]any)
		s.Equal(string(model.StatusCompleted), payload["status"])
		s.Equal("u1", payload["winnerId"])
	}

	// No selections survive completion
	s.Empty(s.storage.SelectionsFor(id))
	s.Empty(s.cache.Nominations(id))
}

func (s *HubSuite) TestClaimVictoryFailuresGoToBothPlayers() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10,
	})
	id := challengeID(s.lastOfType(bob, MsgChallengeCreated))
	s.send(bob, map[string]any{"type": MsgAcceptChallenge, "challengeId": string(id)})
	s.send(bob, map[string]any{"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2"})
	s.frames(alice)
	s.frames(bob)

	// No selections yet
	s.send(alice, map[string]any{"type": MsgClaimVictory, "challengeId": string(id)})
	s.Contains(s.lastOfType(alice, MsgClaimVictoryFailed)["message"], "must select a winner")
	s.Contains(s.lastOfType(bob, MsgClaimVictoryFailed)["message"], "must select a winner")

	// Disagreeing selections
	s.send(alice, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u1", "winnerId": "u1",
	})
	s.send(bob, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u2", "winnerId": "u2",
	})
	s.send(alice, map[string]any{"type": MsgClaimVictory, "challengeId": string(id)})
	s.Contains(s.lastOfType(alice, MsgClaimVictoryFailed)["message"], "disagree")
	s.Contains(s.lastOfType(bob, MsgClaimVictoryFailed)["message"], "disagree")

	// Reselection resolves it
	s.send(bob, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u2", "winnerId": "u1",
	})
	s.send(alice, map[string]any{"type": MsgClaimVictory, "challengeId": string(id)})
	s.lastOfType(alice, MsgChallengeCompleted)
	s.lastOfType(bob, MsgChallengeCompleted)
}

func (s *HubSuite) TestSelectWinnerLegacyAliases() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10,
	})
	id := challengeID(s.lastOfType(bob, MsgChallengeCreated))
	s.send(bob, map[string]any{"type": MsgAcceptChallenge, "challengeId": string(id)})
	s.send(bob, map[string]any{"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2"})
	s.frames(alice)

	s.send(alice, map[string]any{
		"type": MsgSelectWinner, "gameId": string(id), "playerId": "u1", "selectedWinner": "u1",
	})

	update := s.lastOfType(alice, MsgChallengeUpdate)
	payload, _ := update["challenge"].(map[string]any)
	selections, ok := payload["winnerSelections"].(map[string]any)
	s.Require().True(ok)
	s.Equal("u1", selections["u1"])
}

func (s *HubSuite) TestGetWinnerSelectionsSnapshot() {
	alice := s.connect()
	bob := s.connect()
	s.online(alice, "u1")
	s.online(bob, "u2")

	s.send(alice, map[string]any{
		"type": MsgCreateChallenge, "creatorId": "u1", "inviteeId": "u2",
		"game": "Valorant", "coins": 10,
	})
	id := challengeID(s.lastOfType(bob, MsgChallengeCreated))
	s.send(bob, map[string]any{"type": MsgAcceptChallenge, "challengeId": string(id)})
	s.send(bob, map[string]any{"type": MsgStartChallenge, "challengeId": string(id), "userId": "u2"})
	s.send(alice, map[string]any{
		"type": MsgSelectWinner, "challengeId": string(id), "playerId": "u1", "winnerId": "u1",
	})
	s.frames(alice)

	s.send(alice, map[string]any{"type": MsgGetWinnerSelections})

	frame := s.lastOfType(alice, MsgAllWinnerSelections)
	selections, ok := frame["selections"].(map[string]any)
	s.Require().True(ok)
	perChallenge, ok := selections[string(id)].(map[string]any)
	s.Require().True(ok)
	s.Equal("u1", perChallenge["u1"])
}

// Broadcaster tests

func (s *HubSuite) TestBroadcasterSkipsOfflineAndUnusableRecipients() {
	alice := s.connect()
	s.online(alice, "u1")
	s.frames(alice)

	// u9 offline, u8 bound to something that is not a client
	s.cache.SetOnline("u8", "Henry", "not-a-client", s.clock.Now())

	s.hub.broadcaster.ToUsers(newFailureFrame(MsgError, "ping"), "u1", "u9", "u8", "")

	frame := s.lastOfType(alice, MsgError)
	s.Equal("ping", frame["message"])
}
