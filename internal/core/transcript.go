package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/vliz/internal/types"
)

// TranscriptName is the chat name written in a transcript header.
func TranscriptName(channel types.Channel) string {
	if channel == types.ChannelPublic {
		return "Vlizz Chat"
	}
	return "Support"
}

// Transcript renders one channel as plain text: a header line, a rule, then
// each message followed by a blank line.
func Transcript(channel types.Channel, messages []types.Message, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vliz %s - %s\n", TranscriptName(channel), now.Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")
	for _, msg := range messages {
		b.WriteString(DisplayText(msg))
		b.WriteString("\n\n")
	}
	return b.String()
}

// TranscriptFilename is the default file name for an export taken at now.
func TranscriptFilename(channel types.Channel, now time.Time) string {
	return fmt.Sprintf("vliz-%s-chat-%d.txt", channel, now.UnixMilli())
}
