package engine

import (
	"strings"

	"github.com/gen2brain/beeep"
)

// NotificationTitle is the desktop notification title for new messages.
const NotificationTitle = "Vliz Support Chat"

// Notifier produces the audio cue and desktop notification side effects.
type Notifier interface {
	Beep() error
	Notify(title, body string) error
}

// DesktopNotifier uses the OS notification center and speaker.
type DesktopNotifier struct{}

func (DesktopNotifier) Beep() error {
	return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
}

func (DesktopNotifier) Notify(title, body string) error {
	return beeep.Notify(title, truncateNotification(body, 100), "")
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Beep() error { return nil }
func (NopNotifier) Notify(string, string) error { return nil }

func truncateNotification(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
