package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

type storeOp struct {
	op    string
	path  string
	value json.RawMessage
}

// fakeStore is an in-memory Store that records every mutation and can
// optionally echo writes back to subscribers, the way the real store
// notifies the writer of its own write. Mutations are mutex-guarded
// like the real store's, since the typing expiry timer issues them off
// the event goroutine.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
	subs map[string][]func(json.RawMessage)
	ops  []storeOp

	echo      bool
	failMut   bool
	appendSeq int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs: make(map[string]json.RawMessage),
		subs: make(map[string][]func(json.RawMessage)),
	}
}

func (f *fakeStore) opsByType(op string) []storeOp {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []storeOp
	for _, o := range f.ops {
		if o.op == op {
			out = append(out, o)
		}
	}
	return out
}

// record appends to the op log; the caller holds f.mu.
func (f *fakeStore) record(op, path string, value any) json.RawMessage {
	raw, _ := json.Marshal(value)
	f.ops = append(f.ops, storeOp{op: op, path: path, value: raw})
	return raw
}

// notify delivers outside the lock so callbacks can reenter the store.
func (f *fakeStore) notify(path string) {
	f.mu.Lock()
	fns := append([]func(json.RawMessage){}, f.subs[path]...)
	raw := f.docs[path]
	f.mu.Unlock()

	for _, fn := range fns {
		fn(raw)
	}
}

func (f *fakeStore) Read(_ context.Context, path string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.docs[path]
	if !ok {
		return nil, ErrAbsent
	}
	return raw, nil
}

func (f *fakeStore) Subscribe(_ context.Context, path string, fn func(json.RawMessage)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subs[path] = append(f.subs[path], fn)
	return nil
}

func (f *fakeStore) Write(_ context.Context, path string, value any) error {
	if f.failMut {
		return errors.New("store unavailable")
	}

	f.mu.Lock()
	f.docs[path] = f.record("write", path, value)
	f.mu.Unlock()

	if f.echo {
		f.notify(path)
	}
	return nil
}

func (f *fakeStore) Merge(_ context.Context, path string, value any) error {
	if f.failMut {
		return errors.New("store unavailable")
	}

	f.mu.Lock()
	raw := f.record("merge", path, value)

	merged := make(map[string]json.RawMessage)
	if existing, ok := f.docs[path]; ok {
		json.Unmarshal(existing, &merged)
	}
	var fields map[string]json.RawMessage
	json.Unmarshal(raw, &fields)
	for k, v := range fields {
		merged[k] = v
	}
	f.docs[path], _ = json.Marshal(merged)
	f.mu.Unlock()

	if f.echo {
		f.notify(path)
	}
	return nil
}

func (f *fakeStore) Append(_ context.Context, path string, value any) (string, error) {
	if f.failMut {
		return "", errors.New("store unavailable")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.appendSeq++
	key := fmt.Sprintf("key-%d", f.appendSeq)
	f.record("append", path, value)
	return key, nil
}

func (f *fakeStore) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("remove", path, nil)
	delete(f.docs, path)
	return nil
}

func (f *fakeStore) OnDisconnect(_ context.Context, path string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ondisconnect", path, value)
	return nil
}

type fakePlayer struct {
	videoId     string
	state       PlayerState
	currentTime float64
	duration    float64
	volume      int
	muted       bool

	loads  []string
	plays  int
	pauses int
	seeks  []float64
}

func (p *fakePlayer) Load(videoId string) {
	p.videoId = videoId
	p.loads = append(p.loads, videoId)
}
func (p *fakePlayer) Play()  { p.plays++; p.state = PlayerStatePlaying }
func (p *fakePlayer) Pause() { p.pauses++; p.state = PlayerStatePaused }
func (p *fakePlayer) SeekTo(seconds float64) {
	p.seeks = append(p.seeks, seconds)
	p.currentTime = seconds
}
func (p *fakePlayer) CurrentTime() float64 { return p.currentTime }
func (p *fakePlayer) Duration() float64    { return p.duration }
func (p *fakePlayer) State() PlayerState   { return p.state }
func (p *fakePlayer) SetVolume(volume int) { p.volume = volume }
func (p *fakePlayer) Mute()                { p.muted = true }
func (p *fakePlayer) Unmute()              { p.muted = false }
func (p *fakePlayer) IsMuted() bool        { return p.muted }

type notification struct {
	level   NotifyLevel
	message string
}

type fakeUI struct {
	notifications []notification
	playButton    []bool
	nowPlaying    string
	overlayShown  bool
	membersCount  int
	avatars       []Member
	typingTexts   []string
	rendered      [][]Message
	landings      int
}

func newFakeUI() *fakeUI {
	return &fakeUI{overlayShown: true}
}

func (u *fakeUI) Notify(level NotifyLevel, message string) {
	u.notifications = append(u.notifications, notification{level, message})
}
func (u *fakeUI) SetPlayButton(playing bool)            { u.playButton = append(u.playButton, playing) }
func (u *fakeUI) SetNowPlaying(title string)            { u.nowPlaying = title }
func (u *fakeUI) SetVideoOverlayVisible(visible bool)   { u.overlayShown = visible }
func (u *fakeUI) SetMembersCount(count int)             { u.membersCount = count }
func (u *fakeUI) SetHeaderAvatars(members []Member)     { u.avatars = members }
func (u *fakeUI) SetTypingText(text string)             { u.typingTexts = append(u.typingTexts, text) }
func (u *fakeUI) RenderMessages(messages []Message)     { u.rendered = append(u.rendered, messages) }
func (u *fakeUI) ShowLanding()                          { u.landings++ }

func (u *fakeUI) lastTypingText() string {
	if len(u.typingTexts) == 0 {
		return ""
	}
	return u.typingTexts[len(u.typingTexts)-1]
}

func (u *fakeUI) hasNotification(level NotifyLevel) bool {
	for _, n := range u.notifications {
		if n.level == level {
			return true
		}
	}
	return false
}
