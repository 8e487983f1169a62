package core

import (
	"strings"

	"github.com/adamavenir/vliz/internal/types"
)

// Wire conventions for the message log.
const (
	PublicPrefix       = "[PUBLIC]"
	FilePrefix         = "[FILE:"
	MaintenanceOnText  = "!mantenimiento on"
	MaintenanceOffText = "!mantenimiento off"
)

// ParseControl returns the control directive carried by raw, if any.
func ParseControl(raw types.RawMessage) types.Control {
	switch strings.TrimSpace(raw) {
	case MaintenanceOnText:
		return types.ControlMaintenanceOn
	case MaintenanceOffText:
		return types.ControlMaintenanceOff
	}
	return types.ControlNone
}

// Classify turns one raw message into its tagged form.
func Classify(raw types.RawMessage) types.Message {
	if control := ParseControl(raw); control != types.ControlNone {
		return types.Message{Kind: types.KindControl, Control: control, Text: strings.TrimSpace(raw)}
	}

	msg := types.Message{Kind: types.KindSupport, Text: raw}
	if strings.HasPrefix(raw, PublicPrefix) {
		msg.Kind = types.KindPublic
		msg.Text = strings.TrimSpace(strings.Replace(raw, PublicPrefix, "", 1))
	}
	if att, ok := ParseFileEnvelope(msg.Text); ok {
		msg.Attachment = att
	}
	return msg
}

// Partition classifies the whole log into support and public sequences.
// Control entries are dropped; relative order is preserved.
func Partition(log []types.RawMessage) (support, public []types.Message) {
	support = make([]types.Message, 0, len(log))
	public = make([]types.Message, 0)
	for idx, raw := range log {
		msg := Classify(raw)
		msg.Index = idx
		switch msg.Kind {
		case types.KindPublic:
			public = append(public, msg)
		case types.KindSupport:
			support = append(support, msg)
		}
	}
	return support, public
}

// ControlIn scans a fresh slice for maintenance directives. "on" is checked
// before "off" across the whole slice, so a slice holding both resolves to on.
func ControlIn(slice []types.RawMessage) (types.Control, bool) {
	hasOff := false
	for _, raw := range slice {
		switch ParseControl(raw) {
		case types.ControlMaintenanceOn:
			return types.ControlMaintenanceOn, true
		case types.ControlMaintenanceOff:
			hasOff = true
		}
	}
	if hasOff {
		return types.ControlMaintenanceOff, true
	}
	return types.ControlNone, false
}

// PublicEnvelope prefixes a payload for the public channel.
func PublicEnvelope(payload string) string {
	return PublicPrefix + payload
}

// WirePayload returns what is appended to the log for a payload on channel.
func WirePayload(payload string, channel types.Channel) string {
	if channel == types.ChannelPublic {
		return PublicEnvelope(payload)
	}
	return payload
}

// DisplayText is the text shown for a message, with files reduced to a label.
func DisplayText(msg types.Message) string {
	if msg.Attachment != nil {
		return FileLabel(msg.Attachment.Name)
	}
	return msg.Text
}
