package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/exp/maps"
)

// Presence maintains this user's entry in the room's users mapping and
// derives the visible roster from everyone's entries.
type Presence struct {
	store  Store
	ui     UI
	logger *slog.Logger

	self   Identity
	roomId string

	// full room-leave sequence, wired by the session; invoked when our
	// own entry turns up kicked
	onKicked func(ctx context.Context)
	announce func(ctx context.Context, text string)

	now func() time.Time
}

func NewPresence(store Store, ui UI, self Identity, roomId string, logger *slog.Logger) *Presence {
	return &Presence{
		store:    store,
		ui:       ui,
		logger:   logger,
		self:     self,
		roomId:   roomId,
		onKicked: func(context.Context) {},
		announce: func(context.Context, string) {},
		now:      time.Now,
	}
}

// Join writes this user's entry and registers the best-effort offline
// mark for unclean disconnects. (Re)joining overwrites idempotently.
func (p *Presence) Join(ctx context.Context) error {
	path := userPath(p.roomId, p.self.Id)

	if err := p.store.Write(ctx, path, User{
		Name:     p.self.Name,
		PhotoURL: p.self.PhotoURL,
		Online:   true,
		IsHost:   p.self.IsHost,
		JoinedAt: p.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to write user entry: %w", err)
	}

	if err := p.store.OnDisconnect(ctx, path, map[string]any{"online": false}); err != nil {
		// presence degrades to a stale online flag, nothing to roll back
		p.logger.WarnContext(ctx, "failed to register disconnect hook", "error", err)
	}

	return nil
}

// OnUsersChanged recomputes the roster and checks whether this user was
// kicked, in which case the session's leave sequence is triggered.
func (p *Presence) OnUsersChanged(ctx context.Context, users map[string]User) {
	if self, ok := users[p.self.Id]; ok && self.Kicked {
		p.ui.Notify(NotifyError, "You have been removed from the room")
		p.onKicked(ctx)
		return
	}

	online := make([]Member, 0, len(users))
	for _, id := range maps.Keys(users) {
		u := users[id]
		if u.Online && !u.Kicked {
			online = append(online, Member{Id: id, User: u})
		}
	}

	// map order is arbitrary; show earliest joiners first
	sort.Slice(online, func(i, j int) bool {
		if online[i].User.JoinedAt != online[j].User.JoinedAt {
			return online[i].User.JoinedAt < online[j].User.JoinedAt
		}
		return online[i].Id < online[j].Id
	})

	p.ui.SetMembersCount(len(online))

	avatars := online
	if len(avatars) > 2 {
		avatars = avatars[:2]
	}
	p.ui.SetHeaderAvatars(avatars)
}

// Kick marks the target offline and kicked. Only the host may kick, and
// never themselves; anything else is a silent no-op with no store write.
func (p *Presence) Kick(ctx context.Context, targetId, targetName string) error {
	if !p.self.IsHost || targetId == p.self.Id {
		return nil
	}

	if err := p.store.Merge(ctx, userPath(p.roomId, targetId), map[string]any{
		"online": false,
		"kicked": true,
	}); err != nil {
		p.ui.Notify(NotifyError, "Failed to kick user")
		return fmt.Errorf("failed to kick user: %w", err)
	}

	p.announce(ctx, targetName+" was removed from the room")
	p.ui.Notify(NotifyInfo, targetName+" has been kicked")

	return nil
}

// MarkOffline flips this user's online flag, used by the leave sequence.
func (p *Presence) MarkOffline(ctx context.Context) error {
	return p.store.Merge(ctx, userPath(p.roomId, p.self.Id), map[string]any{"online": false})
}
