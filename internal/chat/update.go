package chat

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/engine"
	"github.com/adamavenir/vliz/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

const toastDuration = 3 * time.Second

// pollMsg carries one engine tick. tick marks polls of the repeating
// schedule; refreshes after a send leave the schedule alone.
type pollMsg struct {
	result   engine.PollResult
	snapshot *engine.Snapshot
	err      error
	tick     bool
}

type sendResultMsg struct {
	file bool
	err  error
}

type toastExpiredMsg struct {
	seq int
}

type toastKind int

const (
	toastInfo toastKind = iota
	toastSuccess
	toastError
)

type toast struct {
	text string
	kind toastKind
}

func (m *Model) poll(tick bool) tea.Msg {
	result, err := m.engine.Poll(m.ctx)
	return pollMsg{result: result, snapshot: m.box.take(), err: err, tick: tick}
}

// startPolling begins the repeating schedule with an immediate tick.
func (m *Model) startPolling() tea.Cmd {
	m.pendingTicks++
	return func() tea.Msg { return m.poll(true) }
}

// refresh polls once outside the schedule.
func (m *Model) refresh() tea.Cmd {
	return func() tea.Msg { return m.poll(false) }
}

func (m *Model) pollCmd() tea.Cmd {
	m.pendingTicks++
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return m.poll(true)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.MouseMsg:
		return m.handleMouseMsg(msg)
	case pollMsg:
		return m.handlePollMsg(msg)
	case sendResultMsg:
		return m.handleSendResult(msg)
	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = toast{}
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) handlePollMsg(msg pollMsg) (tea.Model, tea.Cmd) {
	if msg.tick && m.pendingTicks > 0 {
		m.pendingTicks--
	}
	if msg.err != nil {
		return m, nil
	}
	if msg.result.Reload {
		m.reload = true
		return m, tea.Quit
	}
	if msg.snapshot != nil {
		atBottom := m.viewport.AtBottom() || !m.loaded
		m.snapshot = *msg.snapshot
		m.loaded = true
		m.refreshViewport(atBottom)
	}
	if !msg.tick || m.pendingTicks > 0 {
		return m, nil
	}
	return m, m.pollCmd()
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+p", "f2":
		if m.mode == viewSettings {
			m.mode = viewChat
		} else {
			m.mode = viewSettings
		}
		return m, nil
	}

	if m.mode == viewSettings {
		return m.handleSettingsKey(msg)
	}

	switch msg.String() {
	case "esc":
		if m.fileMode {
			m.setFileMode(false)
			return m, nil
		}
		return m, tea.Quit
	}
	if m.maintenance {
		return m, nil
	}

	switch msg.String() {
	case "tab":
		m.toggleChannel()
		return m, nil
	case "ctrl+o":
		m.setFileMode(!m.fileMode)
		return m, nil
	case "ctrl+s":
		return m, m.exportTranscript()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action == tea.MouseActionRelease && msg.Button == tea.MouseButtonLeft {
		switch {
		case m.zoneManager.Get(zoneTabSupport).InBounds(msg):
			m.mode = viewChat
			m.setChannel(types.ChannelSupport)
			return m, nil
		case m.zoneManager.Get(zoneTabPublic).InBounds(msg):
			m.mode = viewChat
			m.setChannel(types.ChannelPublic)
			return m, nil
		case m.zoneManager.Get(zoneTabSettings).InBounds(msg):
			m.mode = viewSettings
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) toggleChannel() {
	if m.engine.ActiveChannel() == types.ChannelPublic {
		m.setChannel(types.ChannelSupport)
		return
	}
	m.setChannel(types.ChannelPublic)
}

func (m *Model) setChannel(channel types.Channel) {
	if m.engine.ActiveChannel() == channel {
		return
	}
	m.engine.SetActiveChannel(channel)
	if err := db.SaveActiveChannel(m.store, channel); err != nil {
		m.showToast(err.Error(), toastError)
	}
	m.refreshViewport(true)
}

func (m *Model) setFileMode(on bool) {
	m.fileMode = on
	if on {
		m.input.Placeholder = "path to file (image, video, pdf, doc, docx, txt)"
		return
	}
	m.input.Placeholder = m.text.Placeholder
}

func (m *Model) submit() (tea.Model, tea.Cmd) {
	if m.sending {
		return m, nil
	}
	value := m.input.Value()
	if strings.TrimSpace(value) == "" {
		return m, m.showToast(m.text.EmptyMessage, toastError)
	}
	channel := m.engine.ActiveChannel()
	ctx := m.ctx
	eng := m.engine

	if m.fileMode {
		path := strings.TrimSpace(value)
		data, err := os.ReadFile(path)
		if err != nil {
			return m, m.showToast(m.text.FileSendError+": "+err.Error(), toastError)
		}
		att, err := core.NewAttachment(path, data)
		if errors.Is(err, core.ErrFileTooLarge) {
			return m, m.showToast(m.text.FileTooLarge, toastError)
		}
		if err != nil {
			return m, m.showToast(m.text.FileSendError+": "+err.Error(), toastError)
		}
		m.sending = true
		return m, func() tea.Msg {
			return sendResultMsg{file: true, err: eng.SendFile(ctx, att, channel)}
		}
	}

	m.sending = true
	return m, func() tea.Msg {
		return sendResultMsg{err: eng.Send(ctx, value, channel)}
	}
}

func (m *Model) handleSendResult(msg sendResultMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	if msg.err != nil {
		text := m.text.SendError
		if msg.file {
			text = m.text.FileSendError
		}
		return m, m.showToast(text, toastError)
	}
	m.input.Reset()
	text := m.text.MessageSent
	if msg.file {
		text = m.text.FileSent
		m.setFileMode(false)
	}
	return m, tea.Batch(m.showToast(text, toastSuccess), m.refresh())
}

func (m *Model) exportTranscript() tea.Cmd {
	now := time.Now()
	channel := m.engine.ActiveChannel()
	content := core.Transcript(channel, m.snapshot.Messages(channel), now)
	path := filepath.Join(m.exportDir, core.TranscriptFilename(channel, now))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return m.showToast(err.Error(), toastError)
	}
	return m.showToast(m.text.Downloaded+" "+path, toastSuccess)
}

func (m *Model) showToast(text string, kind toastKind) tea.Cmd {
	m.toast = toast{text: text, kind: kind}
	return m.expireToast()
}

func (m *Model) expireToast() tea.Cmd {
	m.toastSeq++
	seq := m.toastSeq
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}
