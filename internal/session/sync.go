package session

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	// minimum interval between play/pause publishes; extra events inside
	// the window are dropped, not queued
	minPublishGap = 100 * time.Millisecond
	// how long incoming updates are ignored after a local publish, so the
	// store's echo of our own write is not re-applied as a remote command
	suppressWindow = 200 * time.Millisecond
	// remote/local position drift below this is left to play out
	seekThreshold = 0.5
)

// SyncEngine reconciles the local player with the room's shared
// VideoState record. It decides when local changes are published and
// when remote changes are applied, and breaks the feedback loop that
// would otherwise form when the store echoes a client's own write back
// to it. Not safe for concurrent use; the session drives it from a
// single event goroutine.
type SyncEngine struct {
	store  Store
	player Player
	ui     UI
	logger *slog.Logger

	selfId string
	roomId string

	// system chat hook, wired by the session
	announce func(ctx context.Context, text string)

	now func() time.Time

	lastPublish   time.Time
	suppressUntil time.Time
	issuedWrites  map[string]struct{}
	issuedOrder   []string

	videoId     string
	videoTitle  string
	isPlaying   bool
	currentTime float64
}

func NewSyncEngine(store Store, player Player, ui UI, selfId, roomId string, logger *slog.Logger) *SyncEngine {
	return &SyncEngine{
		store:        store,
		player:       player,
		ui:           ui,
		logger:       logger,
		selfId:       selfId,
		roomId:       roomId,
		announce:     func(context.Context, string) {},
		now:          time.Now,
		issuedWrites: make(map[string]struct{}),
	}
}

// OnLocalPlaybackEvent handles a play/pause transition caused by the
// local user. Publishes the new state unless a publish happened within
// the last 100ms.
func (e *SyncEngine) OnLocalPlaybackEvent(ctx context.Context, playing bool) {
	now := e.now()
	if now.Sub(e.lastPublish) < minPublishGap {
		return
	}
	e.lastPublish = now

	e.isPlaying = playing
	e.currentTime = e.player.CurrentTime()

	e.publish(ctx, map[string]any{
		"is_playing":   playing,
		"current_time": e.currentTime,
	})
}

// OnLocalSeek seeks the local player and publishes the new position.
// Seeks are explicit user actions, so they are not throttled.
func (e *SyncEngine) OnLocalSeek(ctx context.Context, targetSeconds float64) {
	e.player.SeekTo(targetSeconds)
	e.currentTime = targetSeconds

	e.publish(ctx, map[string]any{
		"current_time": targetSeconds,
	})
}

// OnVideoSelected loads a new video locally, publishes the full video
// state and announces it in chat.
func (e *SyncEngine) OnVideoSelected(ctx context.Context, videoId, title string) {
	e.player.Load(videoId)
	e.ui.SetVideoOverlayVisible(false)
	e.ui.SetNowPlaying(title)

	e.videoId = videoId
	e.videoTitle = title
	e.isPlaying = true
	e.currentTime = 0

	e.publish(ctx, map[string]any{
		"video_id":     videoId,
		"video_title":  title,
		"is_playing":   true,
		"current_time": 0,
	})

	e.ui.Notify(NotifySuccess, "Video selected!")
	e.announce(ctx, "Now playing: "+title)
}

// OnRemoteState applies a change of the shared record to the local
// player. Echoes of this client's own writes are dropped, first by
// write id and then by the suppression window for stores that strip
// the origin fields.
func (e *SyncEngine) OnRemoteState(ctx context.Context, remote VideoState) {
	if remote.UpdatedBy == e.selfId && remote.WriteId != "" {
		if _, ok := e.issuedWrites[remote.WriteId]; ok {
			delete(e.issuedWrites, remote.WriteId)
			return
		}
	}
	if e.now().Before(e.suppressUntil) {
		return
	}

	if remote.VideoId != "" && remote.VideoId != e.videoId {
		e.videoId = remote.VideoId
		e.videoTitle = remote.VideoTitle

		title := remote.VideoTitle
		if title == "" {
			title = "Playing..."
		}
		e.ui.SetNowPlaying(title)

		e.player.Load(remote.VideoId)
		e.ui.SetVideoOverlayVisible(false)
	}

	if e.videoId != "" {
		state := e.player.State()
		if remote.IsPlaying && state != PlayerStatePlaying {
			e.player.Play()
			e.ui.SetPlayButton(true)
		} else if !remote.IsPlaying && state == PlayerStatePlaying {
			e.player.Pause()
			e.ui.SetPlayButton(false)
		}

		if math.Abs(e.player.CurrentTime()-remote.CurrentTime) > seekThreshold {
			e.player.SeekTo(remote.CurrentTime)
		}
	}

	e.isPlaying = remote.IsPlaying
	e.currentTime = remote.CurrentTime
}

// TogglePlayPause flips the local player; the widget's resulting state
// change event is what feeds OnLocalPlaybackEvent.
func (e *SyncEngine) TogglePlayPause() {
	if e.player.State() == PlayerStatePlaying {
		e.player.Pause()
	} else {
		e.player.Play()
	}
}

// LastKnown reports the engine's mirror of the shared record, used as
// the progress bar base.
func (e *SyncEngine) LastKnown() (isPlaying bool, currentTime float64) {
	return e.isPlaying, e.currentTime
}

func (e *SyncEngine) publish(ctx context.Context, fields map[string]any) {
	now := e.now()
	e.suppressUntil = now.Add(suppressWindow)

	writeId := uuid.NewString()
	e.trackWrite(writeId)

	fields["updated_at"] = now.UnixMilli()
	fields["updated_by"] = e.selfId
	fields["write_id"] = writeId

	if err := e.store.Merge(ctx, videoStatePath(e.roomId), fields); err != nil {
		// optimistic: local playback stands even if the publish failed
		e.logger.WarnContext(ctx, "failed to publish video state", "error", err)
		e.ui.Notify(NotifyError, "Failed to sync playback")
	}
}

func (e *SyncEngine) trackWrite(writeId string) {
	e.issuedWrites[writeId] = struct{}{}
	e.issuedOrder = append(e.issuedOrder, writeId)

	if len(e.issuedOrder) > 64 {
		delete(e.issuedWrites, e.issuedOrder[0])
		e.issuedOrder = e.issuedOrder[1:]
	}
}
