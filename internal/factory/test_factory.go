package factory

import (
	"time"

	"github.com/playrival/rival-server/internal/dependencies/mocks"
	"github.com/playrival/rival-server/internal/storage/memory"
	"github.com/playrival/rival-server/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock

	// MemoryStorage is the concrete store for direct seeding and probing
	MemoryStorage *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	app := newWithDependencies(store, mockClock, testutil.NopLogger())

	return &TestApp{
		App:           app,
		MockClock:     mockClock,
		MemoryStorage: store,
	}
}
