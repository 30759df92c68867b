package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Chat appends to the room's message log and renders it. The store does
// not guarantee child order, so rendering sorts by timestamp.
type Chat struct {
	store  Store
	ui     UI
	logger *slog.Logger

	self   Identity
	roomId string

	now func() time.Time
}

func NewChat(store Store, ui UI, self Identity, roomId string, logger *slog.Logger) *Chat {
	return &Chat{
		store:  store,
		ui:     ui,
		logger: logger,
		self:   self,
		roomId: roomId,
		now:    time.Now,
	}
}

func (c *Chat) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if _, err := c.store.Append(ctx, messagesPath(c.roomId), Message{
		SenderId:    c.self.Id,
		SenderName:  c.self.Name,
		SenderPhoto: c.self.PhotoURL,
		Text:        text,
		Timestamp:   c.now().UnixMilli(),
		Type:        MessageTypeUser,
	}); err != nil {
		c.ui.Notify(NotifyError, "Failed to send message")
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

func (c *Chat) SendSystem(ctx context.Context, text string) {
	if _, err := c.store.Append(ctx, messagesPath(c.roomId), Message{
		SenderId:   "system",
		SenderName: "System",
		Text:       text,
		Timestamp:  c.now().UnixMilli(),
		Type:       MessageTypeSystem,
	}); err != nil {
		c.logger.WarnContext(ctx, "failed to send system message", "error", err)
	}
}

func (c *Chat) OnMessagesChanged(messages map[string]Message) {
	ordered := make([]Message, 0, len(messages))
	for _, msg := range messages {
		ordered = append(ordered, msg)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	c.ui.RenderMessages(ordered)
}
