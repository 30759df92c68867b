package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// how long after the last keystroke the local typing entry survives
const typingExpiry = 3 * time.Second

// Typing publishes this user's short-lived "is typing" entry and renders
// everyone else's. The entry self-expires client-side; a disconnect-hook
// removal covers clients that drop mid-type.
//
// Expiry fires on a timer goroutine, not the session's event goroutine,
// so the timer state is mutex-guarded and store mutations must be safe
// to issue from either goroutine (the websocket store serializes its
// writes).
type Typing struct {
	store  Store
	ui     UI
	logger *slog.Logger

	self   Identity
	roomId string

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu          sync.Mutex
	expiryTimer *time.Timer
	timerGen    int
}

func NewTyping(store Store, ui UI, self Identity, roomId string, logger *slog.Logger) *Typing {
	return &Typing{
		store:     store,
		ui:        ui,
		logger:    logger,
		self:      self,
		roomId:    roomId,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

// OnLocalInput refreshes this user's typing entry and (re)arms the
// expiry timer.
func (t *Typing) OnLocalInput(ctx context.Context) {
	if err := t.store.Write(ctx, typingUserPath(t.roomId, t.self.Id), TypingEntry{
		Name:      t.self.Name,
		Timestamp: t.now().UnixMilli(),
	}); err != nil {
		t.logger.WarnContext(ctx, "failed to write typing entry", "error", err)
		return
	}

	t.mu.Lock()
	if t.expiryTimer != nil {
		t.expiryTimer.Stop()
	}
	t.timerGen++
	gen := t.timerGen
	t.expiryTimer = t.afterFunc(typingExpiry, func() {
		t.expire(gen)
	})
	t.mu.Unlock()
}

// expire runs on the timer goroutine. A rearm or Clear in the meantime
// bumps the generation and makes the stale firing a no-op.
func (t *Typing) expire(gen int) {
	t.mu.Lock()
	if gen != t.timerGen {
		t.mu.Unlock()
		return
	}
	t.expiryTimer = nil
	t.mu.Unlock()

	t.remove(context.Background())
}

// Clear removes this user's typing entry, on expiry or message send.
func (t *Typing) Clear(ctx context.Context) {
	t.mu.Lock()
	if t.expiryTimer != nil {
		t.expiryTimer.Stop()
		t.expiryTimer = nil
	}
	t.timerGen++
	t.mu.Unlock()

	t.remove(ctx)
}

func (t *Typing) remove(ctx context.Context) {
	if err := t.store.Remove(ctx, typingUserPath(t.roomId, t.self.Id)); err != nil {
		t.logger.WarnContext(ctx, "failed to remove typing entry", "error", err)
	}
}

// OnRemoteTyping renders the indicator for everyone except ourselves.
func (t *Typing) OnRemoteTyping(typing map[string]TypingEntry) {
	names := make([]string, 0, len(typing))
	for id, entry := range typing {
		if id == t.self.Id {
			continue
		}
		names = append(names, entry.Name)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		t.ui.SetTypingText("")
	case 1:
		t.ui.SetTypingText(names[0] + " is typing...")
	case 2:
		t.ui.SetTypingText(names[0] + " and " + names[1] + " are typing...")
	default:
		t.ui.SetTypingText("Several people are typing...")
	}
}
