package chat

import (
	"strings"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/charmbracelet/lipgloss"
)

const (
	zoneTabSupport  = "tab-support"
	zoneTabPublic   = "tab-public"
	zoneTabSettings = "tab-settings"
)

// header, rule, blank line, input (2) plus border, toast and help
const chromeHeight = 8

func (m *Model) View() string {
	var body string
	switch {
	case m.mode == viewSettings:
		body = m.renderSettings()
	case m.maintenance:
		body = m.renderMaintenance()
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.viewport.View(),
			"",
			m.renderInput(),
		)
	}
	output := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTabs(),
		m.renderRule(),
		body,
		m.renderToast(),
		m.renderHelp(),
	)
	return m.zoneManager.Scan(output)
}

func (m *Model) resize() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	height := m.height - chromeHeight
	if height < 3 {
		height = 3
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.input.SetWidth(width - 2)
	m.refreshViewport(true)
}

func (m *Model) refreshViewport(scrollBottom bool) {
	m.viewport.SetContent(m.renderMessages())
	if scrollBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderTabs() string {
	active := m.engine.ActiveChannel()
	tab := func(id, label string, selected bool) string {
		style := lipgloss.NewStyle().Padding(0, 2).Foreground(m.palette.muted)
		if selected {
			style = style.Foreground(m.palette.onColor).Background(m.palette.accent).Bold(true)
		}
		return m.zoneManager.Mark(id, style.Render(label))
	}
	chatMode := m.mode == viewChat
	tabs := lipgloss.JoinHorizontal(lipgloss.Top,
		tab(zoneTabSupport, m.text.SupportChat, chatMode && active == types.ChannelSupport),
		" ",
		tab(zoneTabPublic, m.text.PublicChat, chatMode && active == types.ChannelPublic),
		" ",
		tab(zoneTabSettings, m.text.Settings, m.mode == viewSettings),
	)
	title := lipgloss.NewStyle().Bold(true).Foreground(m.palette.accent).Render("Vliz") + "  "
	return title + tabs
}

func (m *Model) renderRule() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return lipgloss.NewStyle().Foreground(m.palette.border).Render(strings.Repeat("─", width))
}

func (m *Model) renderMessages() string {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	channel := m.engine.ActiveChannel()
	messages := m.snapshot.Messages(channel)
	if len(messages) == 0 {
		empty := lipgloss.NewStyle().Foreground(m.palette.muted).Italic(true).Render(m.text.NoMessages)
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, empty)
	}

	counterpart := m.text.Support
	if channel == types.ChannelPublic {
		counterpart = m.text.PublicChat
	}
	maxBubble := width * 3 / 4
	if maxBubble < 10 {
		maxBubble = width
	}

	rows := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := core.DisplayText(msg)
		mine := m.engine.IsMine(text)

		label := counterpart
		bubble := lipgloss.NewStyle().
			Padding(0, 1).
			MaxWidth(maxBubble).
			Foreground(m.palette.text).
			Background(m.palette.theirs)
		align := lipgloss.Left
		if mine {
			label = m.text.You
			bubble = bubble.Foreground(m.palette.onColor).Background(m.palette.mine)
			align = lipgloss.Right
		}
		if msg.IsFile() {
			text = text + "  " + core.AttachmentSize(msg.Attachment)
		}
		wrapped := lipgloss.NewStyle().Width(min(maxBubble-2, lipgloss.Width(text)+1)).Render(text)
		block := lipgloss.JoinVertical(align,
			lipgloss.NewStyle().Foreground(m.palette.muted).Render(label),
			bubble.Render(wrapped),
		)
		rows = append(rows, lipgloss.PlaceHorizontal(width, align, block), "")
	}
	return strings.Join(rows, "\n")
}

func (m *Model) renderInput() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder(), true, false, false, false).
		BorderForeground(m.palette.border)
	if m.sending {
		style = style.BorderForeground(m.palette.muted)
	}
	if m.fileMode {
		style = style.BorderForeground(m.palette.accent)
	}
	return style.Render(m.input.View())
}

func (m *Model) renderMaintenance() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	height := m.height - 4
	if height < 6 {
		height = 6
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.palette.accent).
		Padding(1, 3).
		Width(min(60, width-4)).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.NewStyle().Bold(true).Foreground(m.palette.accent).Render(m.text.MaintenanceTitle),
			"",
			lipgloss.NewStyle().Foreground(m.palette.text).Render(m.text.MaintenanceBody),
		))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

func (m *Model) renderToast() string {
	if m.toast.text == "" {
		return ""
	}
	color := m.palette.muted
	switch m.toast.kind {
	case toastSuccess:
		color = m.palette.success
	case toastError:
		color = m.palette.failure
	}
	return lipgloss.NewStyle().Foreground(color).Render(m.toast.text)
}

func (m *Model) renderHelp() string {
	help := "tab switch chat · enter send · ctrl+o attach · ctrl+s download · ctrl+p settings · esc quit"
	if m.mode == viewSettings {
		help = "↑/↓ select · enter toggle · esc back"
	} else if m.maintenance {
		help = "ctrl+p settings · esc quit"
	}
	return lipgloss.NewStyle().Foreground(m.palette.muted).Render(help)
}
