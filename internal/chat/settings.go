package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/vliz/internal/core"
	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type settingsItem int

const (
	settingLanguage settingsItem = iota
	settingTheme
	settingSound
	settingsCount
)

func (m *Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.mode = viewChat
		return m, nil
	case "up", "k", "shift+tab":
		m.settingsIndex = (m.settingsIndex + int(settingsCount) - 1) % int(settingsCount)
	case "down", "j", "tab":
		m.settingsIndex = (m.settingsIndex + 1) % int(settingsCount)
	case "enter", " ", "left", "right", "h", "l":
		return m, m.toggleSetting(settingsItem(m.settingsIndex))
	}
	return m, nil
}

func (m *Model) toggleSetting(item settingsItem) tea.Cmd {
	switch item {
	case settingLanguage:
		next := core.LangSpanish
		notice := "Idioma cambiado a Español"
		if m.settings.Language == core.LangSpanish {
			next = core.LangEnglish
			notice = "Language changed to English"
		}
		if err := db.SaveLanguage(m.store, next); err != nil {
			return m.showToast(err.Error(), toastError)
		}
		m.settings.Language = next
		m.text = core.T(next)
		m.engine.SetLanguage(next)
		if !m.fileMode {
			m.input.Placeholder = m.text.Placeholder
		}
		m.refreshViewport(false)
		return m.showToast(notice, toastSuccess)
	case settingTheme:
		next := types.ThemeLight
		if m.settings.Theme == types.ThemeLight {
			next = types.ThemeDark
		}
		if err := db.SaveTheme(m.store, next); err != nil {
			return m.showToast(err.Error(), toastError)
		}
		m.settings.Theme = next
		m.palette = paletteFor(next)
		m.refreshViewport(false)
		return nil
	case settingSound:
		next := !m.settings.SoundEnabled
		if err := db.SaveSound(m.store, next); err != nil {
			return m.showToast(err.Error(), toastError)
		}
		m.settings.SoundEnabled = next
		m.engine.SetSoundEnabled(next)
		return nil
	}
	return nil
}

func (m *Model) renderSettings() string {
	onOff := func(on bool) string {
		if on {
			return m.text.On
		}
		return m.text.Off
	}
	language := "English"
	if m.settings.Language == core.LangSpanish {
		language = "Español"
	}
	rows := []struct {
		label string
		value string
	}{
		{m.text.Language, language},
		{m.text.Theme, m.settings.Theme},
		{m.text.Sound, onOff(m.settings.SoundEnabled)},
	}

	labelStyle := lipgloss.NewStyle().Foreground(m.palette.muted).Width(12)
	valueStyle := lipgloss.NewStyle().Foreground(m.palette.text)
	selected := lipgloss.NewStyle().Foreground(m.palette.accent).Bold(true)

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(m.palette.accent).Render(m.text.Settings))
	b.WriteString("\n\n")
	for idx, row := range rows {
		cursor := "  "
		value := valueStyle.Render(row.value)
		if idx == m.settingsIndex {
			cursor = selected.Render("› ")
			value = selected.Render(row.value)
		}
		fmt.Fprintf(&b, "%s%s%s\n", cursor, labelStyle.Render(row.label), value)
	}
	if m.username != "" {
		fmt.Fprintf(&b, "\n%s %s\n", lipgloss.NewStyle().Foreground(m.palette.muted).Render(m.text.LoggedIn), m.username)
	}
	return b.String()
}
