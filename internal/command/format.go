package command

import (
	"fmt"
	"os"
	"strings"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/types"
)

var (
	noColor = os.Getenv("NO_COLOR") != ""

	dim   = ansiCode("\x1b[2m")
	bold  = ansiCode("\x1b[1m")
	reset = ansiCode("\x1b[0m")

	channelColors = map[types.Channel]string{
		types.ChannelSupport: ansiCode("\x1b[38;5;111m"),
		types.ChannelPublic:  ansiCode("\x1b[38;5;157m"),
	}
	mineColor = ansiCode("\x1b[38;5;216m")
)

func ansiCode(code string) string {
	if noColor {
		return ""
	}
	return code
}

// messageRecord is the JSON shape of one message in command output.
type messageRecord struct {
	Channel types.Channel `json:"channel"`
	Index   int           `json:"index"`
	Mine    bool          `json:"mine"`
	Text    string        `json:"text"`
	File    *fileRecord   `json:"file,omitempty"`
}

type fileRecord struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size string `json:"size"`
}

func newMessageRecord(msg types.Message, mine bool) messageRecord {
	record := messageRecord{
		Channel: msg.Channel(),
		Index:   msg.Index,
		Mine:    mine,
		Text:    core.DisplayText(msg),
	}
	if msg.Attachment != nil {
		record.File = &fileRecord{
			Name: msg.Attachment.Name,
			Type: core.ContentType(msg.Attachment.Name),
			Size: core.AttachmentSize(msg.Attachment),
		}
	}
	return record
}

// FormatMessage renders one message as a single display line.
func FormatMessage(msg types.Message, mine bool, text core.Strings) string {
	channel := msg.Channel()
	author := text.Support
	authorColor := channelColors[channel]
	if mine {
		author = text.You
		authorColor = mineColor
	}

	body := core.DisplayText(msg)
	if msg.Attachment != nil {
		body = fmt.Sprintf("%s %s(%s)%s", body, dim, core.AttachmentSize(msg.Attachment), reset)
	}
	body = strings.ReplaceAll(body, "\n", "\n    ")

	return fmt.Sprintf("%s[%s]%s %s%s%s%s: %s",
		dim, channel, reset, bold, authorColor, author, reset, body)
}

func channelFlag(public bool) types.Channel {
	if public {
		return types.ChannelPublic
	}
	return types.ChannelSupport
}
