package tui

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
)

const appVersion = "0.1.0"

// brand colors
var (
	colorRed    = lipgloss.Color("#FF3B3B")
	colorDimRed = lipgloss.Color("#AF2B2B")
	colorGray   = lipgloss.Color("#6C6C6C")
	colorWhite  = lipgloss.Color("#FFFFFF")
	colorDim    = lipgloss.Color("#4E4E4E")
	colorGreen  = lipgloss.Color("#00FF87")
	colorYellow = lipgloss.Color("#FFD75F")
)

var logoLines = []string{
	" ██████   █████  ██████  ███████ ██████  ███████ ██   ██  ██  ██     ",
	" ██   ██ ██   ██ ██   ██ ██      ██   ██ ██      ██   ██  ██  ██     ",
	" ██   ██ ███████ ██████  █████   ██   ██ █████   ██   ██  ██  ██     ",
	" ██   ██ ██   ██ ██  ██  ██      ██   ██ ██       ██ ██   ██  ██     ",
	" ██████  ██   ██ ██   ██ ███████ ██████  ███████   ███    ██  ███████",
}

// Gradient colors top to bottom, crimson fading to ember
var logoGradient = []lipgloss.Color{
	lipgloss.Color("#FF1F3F"),
	lipgloss.Color("#FF3A33"),
	lipgloss.Color("#FF5526"),
	lipgloss.Color("#FF701A"),
	lipgloss.Color("#FF8B0D"),
}

// BannerInfo carries the dynamic fields shown under the logo.
type BannerInfo struct {
	Persona string
	Session string
}

// RenderBanner returns the styled welcome screen shown while the
// transcript is still empty.
func RenderBanner(info BannerInfo, width int) string {
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	tipStyle := lipgloss.NewStyle().Foreground(colorDim)
	versionStyle := lipgloss.NewStyle().Foreground(colorDimRed)

	var logo string
	if width >= 72 {
		for i, line := range logoLines {
			c := logoGradient[i%len(logoGradient)]
			logo += lipgloss.NewStyle().Foreground(c).Bold(true).Render(line) + "\n"
		}
	} else {
		logo = lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render(" ◆  D A R E D E V I L") + "\n"
	}
	logo += versionStyle.Render(fmt.Sprintf("  v%s", appVersion)) + "\n"

	personaLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Persona"),
		valueStyle.Render(info.Persona),
	)
	sessionLine := fmt.Sprintf("  %s %s",
		labelStyle.Render("Session"),
		valueStyle.Render(shortSession(info.Session)),
	)
	envLine := fmt.Sprintf("  %s %s/%s",
		labelStyle.Render("Env    "),
		labelStyle.Render(runtime.GOOS),
		labelStyle.Render(runtime.GOARCH),
	)

	tips := tipStyle.Render("  Enter to ask · /help for commands · Ctrl+C to quit")

	return fmt.Sprintf("\n%s\n%s\n%s\n%s\n\n%s\n",
		logo,
		personaLine, sessionLine, envLine,
		tips,
	)
}
