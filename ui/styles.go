package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/yllada/merlink/vpn"
)

// Palette shared by the picker and status output.
var (
	colorAccent     = lipgloss.Color("#3584e4")
	colorConnected  = lipgloss.Color("#2ec27e")
	colorConnecting = lipgloss.Color("#e5a50a")
	colorError      = lipgloss.Color("#e01b24")
	colorDim        = lipgloss.Color("241")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginLeft(2)

	filterStyle = lipgloss.NewStyle().
			Foreground(colorConnecting).
			MarginLeft(2)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorAccent).
				Bold(true).
				PaddingLeft(2)

	itemStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			MarginLeft(2).
			MarginTop(1)
)

// StatusBadge renders a connection status in its state color.
func StatusBadge(s vpn.ConnectionStatus) string {
	style := lipgloss.NewStyle().Bold(true)
	switch s {
	case vpn.StatusConnected:
		style = style.Foreground(colorConnected)
	case vpn.StatusConnecting, vpn.StatusDisconnecting:
		style = style.Foreground(colorConnecting)
	case vpn.StatusError:
		style = style.Foreground(colorError)
	default:
		style = style.Foreground(colorDim)
	}
	return style.Render(s.String())
}
