package chat

import (
	"github.com/adamavenir/vliz/internal/types"
	"github.com/charmbracelet/lipgloss"
)

type palette struct {
	accent  lipgloss.Color
	text    lipgloss.Color
	muted   lipgloss.Color
	border  lipgloss.Color
	mine    lipgloss.Color
	theirs  lipgloss.Color
	onColor lipgloss.Color
	success lipgloss.Color
	failure lipgloss.Color
}

var darkPalette = palette{
	accent:  lipgloss.Color("203"),
	text:    lipgloss.Color("252"),
	muted:   lipgloss.Color("244"),
	border:  lipgloss.Color("238"),
	mine:    lipgloss.Color("161"),
	theirs:  lipgloss.Color("236"),
	onColor: lipgloss.Color("231"),
	success: lipgloss.Color("114"),
	failure: lipgloss.Color("196"),
}

var lightPalette = palette{
	accent:  lipgloss.Color("160"),
	text:    lipgloss.Color("235"),
	muted:   lipgloss.Color("243"),
	border:  lipgloss.Color("250"),
	mine:    lipgloss.Color("167"),
	theirs:  lipgloss.Color("254"),
	onColor: lipgloss.Color("231"),
	success: lipgloss.Color("28"),
	failure: lipgloss.Color("124"),
}

func paletteFor(theme string) palette {
	if theme == types.ThemeLight {
		return lightPalette
	}
	return darkPalette
}
