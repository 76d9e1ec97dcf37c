package ws

import (
	"log/slog"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/model"
)

// Broadcaster resolves recipient sets from the presence cache and fans
// frames out to them. Sends are best-effort per recipient: one broken
// socket never blocks the others or fails the triggering handler.
type Broadcaster struct {
	cache  *cache.Manager
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster over the given presence cache
func NewBroadcaster(cacheManager *cache.Manager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		cache:  cacheManager,
		logger: logger.With(slog.String("component", "broadcaster")),
	}
}

// ToUsers delivers the frame to each listed user that is currently online.
// Empty ids are skipped, so an unbound invitee slot is harmless.
func (b *Broadcaster) ToUsers(frame any, ids ...model.UserID) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		entry, ok := b.cache.FindByUser(id)
		if !ok {
			continue
		}
		b.deliver(entry, frame)
	}
}

// ToParticipants delivers the frame to the challenge's creator and invitee
func (b *Broadcaster) ToParticipants(frame any, challenge *model.Challenge) {
	creator, invitee := challenge.Participants()
	b.ToUsers(frame, creator, invitee)
}

// ToAll delivers the frame to every online user. The recipient snapshot is
// taken under the cache lock; sends happen outside it.
func (b *Broadcaster) ToAll(frame any) {
	for _, entry := range b.cache.OnlineUsers() {
		b.deliver(entry, frame)
	}
}

func (b *Broadcaster) deliver(entry cache.OnlineEntry, frame any) {
	client, ok := entry.Conn.(*Client)
	if !ok || client == nil {
		b.logger.Warn("presence entry without usable connection",
			slog.String("user_id", string(entry.UserID)))
		return
	}
	client.Send(frame)
}
