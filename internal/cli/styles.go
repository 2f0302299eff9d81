package cli

import "github.com/charmbracelet/lipgloss"

const Logo = "☎"
const Version = "0.1.0"

var (
	Accent = lipgloss.Color("#00FF41")
	Subtle = lipgloss.Color("#555555")
	Green  = lipgloss.Color("#00FF00")
	Red    = lipgloss.Color("#FF0000")

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	BoldStyle  = lipgloss.NewStyle().Bold(true)
	PeerLabel  = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	SelfLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	ErrStyle   = lipgloss.NewStyle().Foreground(Red)
	OkStyle    = lipgloss.NewStyle().Foreground(Green).Bold(true)
	DimStyle   = lipgloss.NewStyle().Foreground(Subtle)

	ModalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.DoubleBorder()).
			BorderForeground(Accent).
			Padding(1, 3)
)

func StatusBadge(ok bool) string {
	if ok {
		return OkStyle.Render("✓")
	}
	return DimStyle.Render("✗")
}

// StatusStyle colors the connection indicator.
func StatusStyle(connected bool) lipgloss.Style {
	if connected {
		return lipgloss.NewStyle().Bold(true).Foreground(Green)
	}
	return lipgloss.NewStyle().Bold(true).Foreground(Red)
}

// RenderBanner is the welcome block shown in an empty transcript.
func RenderBanner() string {
	return TitleStyle.Render("  "+Logo+" peerchat") + DimStyle.Render(" v"+Version) + "\n" +
		DimStyle.Render("  one-to-one chat over a peer broker") + "\n"
}
