package types

// RawMessage is one opaque record from the backend message log.
type RawMessage = string

// Channel partitions the message log by string convention.
type Channel string

const (
	ChannelSupport Channel = "support"
	ChannelPublic  Channel = "public"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelSupport || c == ChannelPublic
}

// ParseChannel maps user input to a channel, defaulting to support.
func ParseChannel(value string) Channel {
	if Channel(value) == ChannelPublic {
		return ChannelPublic
	}
	return ChannelSupport
}

// MessageKind is the classifier's tag for a raw message.
type MessageKind string

const (
	KindControl MessageKind = "control"
	KindPublic  MessageKind = "public"
	KindSupport MessageKind = "support"
)

// Control is a maintenance directive carried in the message stream.
type Control string

const (
	ControlNone           Control = ""
	ControlMaintenanceOn  Control = "on"
	ControlMaintenanceOff Control = "off"
)

// Attachment is a file carried inline as a data URI.
type Attachment struct {
	Name    string `json:"name"`
	DataURI string `json:"data_uri"`
}

// Message is a classified RawMessage.
type Message struct {
	Index      int         `json:"index"`
	Kind       MessageKind `json:"kind"`
	Control    Control     `json:"control,omitempty"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Channel returns the channel a display message belongs to.
func (m Message) Channel() Channel {
	if m.Kind == KindPublic {
		return ChannelPublic
	}
	return ChannelSupport
}

// IsFile reports whether the message carries an attachment.
func (m Message) IsFile() bool {
	return m.Attachment != nil
}

// MaintenanceState is the client-wide mode toggled by control commands.
type MaintenanceState string

const (
	StateNormal      MaintenanceState = "normal"
	StateMaintenance MaintenanceState = "maintenance"
)

// Persisted local state keys.
const (
	KeyAuth             = "vliz_auth"
	KeyUsername         = "vliz_username"
	KeyLanguage         = "vliz_language"
	KeyTheme            = "vliz_theme"
	KeySound            = "vliz_sound"
	KeyMaintenance      = "vliz_maintenance"
	KeyLastMessageCount = "vliz_last_message_count"
	KeySentMessages     = "vliz_sent_messages"
	KeySession          = "vliz_session"
	KeyActiveChannel    = "vliz_active_channel"
)

// Settings holds the user-facing preferences.
type Settings struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username"`
	Language      string `json:"language"`
	Theme         string `json:"theme"`
	SoundEnabled  bool   `json:"sound_enabled"`
}

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)
