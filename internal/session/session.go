package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchtogether/server/pkg/roomcode"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrEmptyRoomCode = errors.New("empty room code")
	ErrNotInRoom     = errors.New("not in a room")
)

type SearchResult struct {
	VideoId      string `json:"video_id"`
	Title        string `json:"title"`
	ThumbnailUrl string `json:"thumbnail_url"`
	ChannelTitle string `json:"channel_title"`
}

type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Session is one user's participation in one room: it owns the sync
// engine, presence tracker, typing indicator and chat, and wires them
// to the store subscriptions. All state lives here rather than in
// package globals, so several sessions can coexist in one process.
//
// A session is single-threaded by design: the store implementation
// must deliver subscription callbacks sequentially, and user actions
// must be driven from that same event goroutine.
type Session struct {
	store  Store
	player Player
	ui     UI
	search SearchProvider
	logger *slog.Logger

	self      Identity
	roomId    string
	hostId    string
	attachGen int

	Sync     *SyncEngine
	Presence *Presence
	Typing   *Typing
	Chat     *Chat

	now func() time.Time
}

func New(store Store, player Player, ui UI, search SearchProvider, self Identity, logger *slog.Logger) *Session {
	return &Session{
		store:  store,
		player: player,
		ui:     ui,
		search: search,
		self:   self,
		logger: logger,
		now:    time.Now,
	}
}

// CreateRoom creates a fresh room with this user as host and attaches
// the session to it. Returns the shareable room code.
func (s *Session) CreateRoom(ctx context.Context) (string, error) {
	code := roomcode.Generate()

	s.self.IsHost = true

	if err := s.store.Write(ctx, roomPath(code), RoomState{
		CreatedAt: s.now().UnixMilli(),
		HostId:    s.self.Id,
		Users: map[string]User{
			s.self.Id: {
				Name:     s.self.Name,
				PhotoURL: s.self.PhotoURL,
				Online:   true,
				IsHost:   true,
				JoinedAt: s.now().UnixMilli(),
			},
		},
		VideoState: VideoState{
			UpdatedAt: s.now().UnixMilli(),
			UpdatedBy: s.self.Id,
		},
	}); err != nil {
		s.ui.Notify(NotifyError, "Failed to create room. Please try again.")
		return "", fmt.Errorf("failed to create room: %w", err)
	}

	if err := s.store.OnDisconnect(ctx, userPath(code, s.self.Id), map[string]any{"online": false}); err != nil {
		s.logger.WarnContext(ctx, "failed to register disconnect hook", "error", err)
	}

	if err := s.attach(ctx, code, s.self.Id); err != nil {
		return "", err
	}

	s.ui.Notify(NotifySuccess, "Room created! Share the code with your group")

	return code, nil
}

// JoinRoom attaches the session to an existing room. A code that does
// not resolve leaves the store untouched and surfaces a not-found
// notification.
func (s *Session) JoinRoom(ctx context.Context, code string) error {
	code = roomcode.Normalize(code)
	if code == "" {
		s.ui.Notify(NotifyError, "Please enter a room code")
		return ErrEmptyRoomCode
	}

	raw, err := s.store.Read(ctx, roomPath(code))
	if err != nil {
		if errors.Is(err, ErrAbsent) {
			s.ui.Notify(NotifyError, "Room not found. Please check the code.")
			return ErrRoomNotFound
		}

		s.ui.Notify(NotifyError, "Failed to join room. Please try again.")
		return fmt.Errorf("failed to read room: %w", err)
	}

	var room RoomState
	if err := json.Unmarshal(raw, &room); err != nil {
		return fmt.Errorf("failed to decode room: %w", err)
	}

	s.self.IsHost = room.HostId == s.self.Id

	if err := s.attach(ctx, code, room.HostId); err != nil {
		return err
	}

	if err := s.Presence.Join(ctx); err != nil {
		s.ui.Notify(NotifyError, "Failed to join room. Please try again.")
		s.roomId = ""
		return err
	}

	s.ui.Notify(NotifySuccess, "Joined room! Say hi to everyone")
	s.Chat.SendSystem(ctx, s.self.Name+" joined the room")

	return nil
}

// attach builds the room-bound components and opens the subscriptions.
// The store has no unsubscribe, so closures from earlier attachments
// stay registered; the generation check silences them, including on a
// rejoin of the same room code.
func (s *Session) attach(ctx context.Context, code, hostId string) error {
	s.roomId = code
	s.hostId = hostId
	s.attachGen++
	gen := s.attachGen

	s.Sync = NewSyncEngine(s.store, s.player, s.ui, s.self.Id, code, s.logger)
	s.Presence = NewPresence(s.store, s.ui, s.self, code, s.logger)
	s.Typing = NewTyping(s.store, s.ui, s.self, code, s.logger)
	s.Chat = NewChat(s.store, s.ui, s.self, code, s.logger)

	s.Sync.announce = s.Chat.SendSystem
	s.Presence.announce = s.Chat.SendSystem
	s.Presence.onKicked = func(ctx context.Context) {
		if err := s.Leave(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to leave room after kick", "error", err)
		}
	}

	// a dropped connection must not leave a stale typing entry behind
	if err := s.store.OnDisconnect(ctx, typingUserPath(code, s.self.Id), nil); err != nil {
		s.logger.WarnContext(ctx, "failed to register typing cleanup hook", "error", err)
	}

	if err := s.store.Subscribe(ctx, videoStatePath(code), func(value json.RawMessage) {
		if s.roomId != code || s.attachGen != gen {
			return
		}
		var state VideoState
		if err := json.Unmarshal(value, &state); err != nil {
			s.logger.Warn("failed to decode video state", "error", err)
			return
		}
		s.Sync.OnRemoteState(ctx, state)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to video state: %w", err)
	}

	if err := s.store.Subscribe(ctx, usersPath(code), func(value json.RawMessage) {
		if s.roomId != code || s.attachGen != gen {
			return
		}
		var users map[string]User
		if err := json.Unmarshal(value, &users); err != nil {
			s.logger.Warn("failed to decode users", "error", err)
			return
		}
		s.Presence.OnUsersChanged(ctx, users)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to users: %w", err)
	}

	if err := s.store.Subscribe(ctx, messagesPath(code), func(value json.RawMessage) {
		if s.roomId != code || s.attachGen != gen {
			return
		}
		var messages map[string]Message
		if err := json.Unmarshal(value, &messages); err != nil {
			s.logger.Warn("failed to decode messages", "error", err)
			return
		}
		s.Chat.OnMessagesChanged(messages)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to messages: %w", err)
	}

	if err := s.store.Subscribe(ctx, typingPath(code), func(value json.RawMessage) {
		if s.roomId != code || s.attachGen != gen {
			return
		}
		var typing map[string]TypingEntry
		if err := json.Unmarshal(value, &typing); err != nil {
			s.logger.Warn("failed to decode typing entries", "error", err)
			return
		}
		s.Typing.OnRemoteTyping(typing)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to typing: %w", err)
	}

	return nil
}

// Leave runs the full departure sequence: publish self offline, post
// the departure message, reset local room state, return to the landing
// view. Also the tail of the kicked flow.
func (s *Session) Leave(ctx context.Context) error {
	if s.roomId == "" {
		return nil
	}

	if err := s.Presence.MarkOffline(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to mark self offline", "error", err)
	}
	s.Chat.SendSystem(ctx, s.self.Name+" left the room")

	s.roomId = ""
	s.hostId = ""
	s.self.IsHost = false

	s.ui.ShowLanding()
	s.ui.Notify(NotifyInfo, "Left the room")

	return nil
}

func (s *Session) RoomId() string { return s.roomId }

// SelectVideo is the click-through from a search result.
func (s *Session) SelectVideo(ctx context.Context, videoId, title string) error {
	if s.roomId == "" {
		return ErrNotInRoom
	}

	s.Sync.OnVideoSelected(ctx, videoId, title)

	return nil
}

func (s *Session) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if query == "" {
		s.ui.Notify(NotifyError, "Please enter a search term")
		return nil, nil
	}

	results, err := s.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}

	return results, nil
}

// SendMessage clears the typing entry and appends to the chat log.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	if s.roomId == "" {
		return ErrNotInRoom
	}

	s.Typing.Clear(ctx)

	return s.Chat.Send(ctx, text)
}

func (s *Session) HandleTyping(ctx context.Context) {
	if s.roomId == "" {
		return
	}

	s.Typing.OnLocalInput(ctx)
}

func (s *Session) KickUser(ctx context.Context, targetId, targetName string) error {
	if s.roomId == "" {
		return ErrNotInRoom
	}

	return s.Presence.Kick(ctx, targetId, targetName)
}

// ToggleMute and SetVolume pass straight through to the widget; volume
// is local, never shared.
func (s *Session) ToggleMute() {
	if s.player.IsMuted() {
		s.player.Unmute()
	} else {
		s.player.Mute()
	}
}

func (s *Session) SetVolume(volume int) {
	s.player.SetVolume(volume)
	if volume == 0 {
		s.player.Mute()
	} else {
		s.player.Unmute()
	}
}
