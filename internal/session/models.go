package session

// Identity is the authenticated user a session acts as.
type Identity struct {
	Id       string
	Name     string
	Email    string
	PhotoURL string
	IsHost   bool
}

// VideoState is the single shared playback record of a room. CurrentTime
// is a snapshot taken at UpdatedAt, not a live counter.
type VideoState struct {
	VideoId     string  `json:"video_id"`
	VideoTitle  string  `json:"video_title"`
	IsPlaying   bool    `json:"is_playing"`
	CurrentTime float64 `json:"current_time"`
	UpdatedAt   int64   `json:"updated_at"`
	UpdatedBy   string  `json:"updated_by"`
	WriteId     string  `json:"write_id"`
}

type User struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
	Online   bool   `json:"online"`
	IsHost   bool   `json:"is_host"`
	Kicked   bool   `json:"kicked"`
	JoinedAt int64  `json:"joined_at"`
}

// Member is a roster entry derived from the users mapping.
type Member struct {
	Id   string
	User User
}

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

type Message struct {
	SenderId    string `json:"sender_id"`
	SenderName  string `json:"sender_name"`
	SenderPhoto string `json:"sender_photo,omitempty"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
	Type        string `json:"type"`
}

type TypingEntry struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// RoomState mirrors the room subtree layout: field names match the
// store path segments under rooms/<code>.
type RoomState struct {
	CreatedAt  int64              `json:"created_at"`
	HostId     string             `json:"host_id"`
	Users      map[string]User    `json:"users"`
	VideoState VideoState         `json:"videoState"`
	Messages   map[string]Message `json:"messages,omitempty"`
}
