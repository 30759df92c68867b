package session

type PlayerState int

const (
	PlayerStateUnstarted PlayerState = iota
	PlayerStatePlaying
	PlayerStatePaused
	PlayerStateBuffering
	PlayerStateEnded
)

// Player is the embedded video widget's control surface. Seeks must not
// block playback (allow-seek-ahead semantics).
type Player interface {
	Load(videoId string)
	Play()
	Pause()
	SeekTo(seconds float64)
	CurrentTime() float64
	Duration() float64
	State() PlayerState
	SetVolume(volume int)
	Mute()
	Unmute()
	IsMuted() bool
}
