package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/mocks"
	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/storage"
	"github.com/playrival/rival-server/internal/storage/memory"
	"github.com/playrival/rival-server/internal/testutil"
)

type JanitorSuite struct {
	suite.Suite
	storage *memory.Storage
	cache   *cache.Manager
	clock   *mocks.MockClock
	janitor *Janitor
	ctx     context.Context
}

func TestJanitorSuite(t *testing.T) {
	suite.Run(t, new(JanitorSuite))
}

func (s *JanitorSuite) SetupTest() {
	s.storage = memory.New()
	s.cache = cache.NewManager()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.janitor = New(s.storage, s.cache, s.clock, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *JanitorSuite) TestWarmUpSeedsActiveSelections() {
	challenge := &model.Challenge{ID: "c1", CreatorID: "u1", InviteeID: "u2", Status: model.StatusInProgress}
	s.Require().NoError(s.storage.CreateChallenge(s.ctx, challenge))
	done := &model.Challenge{ID: "c2", CreatorID: "u1", InviteeID: "u2", Status: model.StatusCompleted}
	s.Require().NoError(s.storage.CreateChallenge(s.ctx, done))

	s.Require().NoError(s.storage.UpsertSelection(s.ctx,
		&model.WinnerSelection{ChallengeID: "c1", PlayerID: "u1", SelectedWinner: "u1"}))
	s.Require().NoError(s.storage.UpsertSelection(s.ctx,
		&model.WinnerSelection{ChallengeID: "c1", PlayerID: "u2", SelectedWinner: "u1"}))
	s.Require().NoError(s.storage.UpsertSelection(s.ctx,
		&model.WinnerSelection{ChallengeID: "c2", PlayerID: "u1", SelectedWinner: "u1"}))

	s.Require().NoError(s.janitor.WarmUp(s.ctx))

	noms := s.cache.Nominations("c1")
	s.Len(noms, 2)
	s.Equal(model.UserID("u1"), noms["u1"])
	// Selections of settled challenges are not restored
	s.Empty(s.cache.Nominations("c2"))
}

func (s *JanitorSuite) TestWarmUpFailureAborts() {
	broken := &failingStorage{Storage: s.storage}
	janitor := New(broken, s.cache, s.clock, testutil.NopLogger())

	err := janitor.WarmUp(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, errLoadFailed)
}

func (s *JanitorSuite) TestSweepEvictsStaleStarts() {
	s.cache.MarkStarted("stale", false, s.clock.Now())
	s.clock.Advance(6 * time.Minute)
	s.cache.MarkStarted("fresh", false, s.clock.Now())

	s.janitor.Sweep()

	_, ok := s.cache.StartState("stale")
	s.False(ok)
	_, ok = s.cache.StartState("fresh")
	s.True(ok)
}

func (s *JanitorSuite) TestSweepLeavesYoungStartsAlone() {
	s.cache.MarkStarted("c1", false, s.clock.Now())
	s.clock.Advance(4 * time.Minute)

	s.janitor.Sweep()

	_, ok := s.cache.StartState("c1")
	s.True(ok)
}

var errLoadFailed = errors.New("load failed")

// failingStorage wraps the memory store with a broken selection load
type failingStorage struct {
	*memory.Storage
}

func (f *failingStorage) LoadActiveSelections(ctx context.Context) ([]*model.WinnerSelection, error) {
	return nil, errLoadFailed
}

var _ storage.Storage = (*failingStorage)(nil)
