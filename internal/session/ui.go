package session

type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
)

// UI is the rendering surface the session drives. Implementations must
// not block; every call happens on the event path.
type UI interface {
	Notify(level NotifyLevel, message string)
	SetPlayButton(playing bool)
	SetNowPlaying(title string)
	SetVideoOverlayVisible(visible bool)
	SetMembersCount(count int)
	SetHeaderAvatars(members []Member)
	SetTypingText(text string)
	RenderMessages(messages []Message)
	ShowLanding()
}
