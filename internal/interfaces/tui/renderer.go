package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// renderer turns pipeline output into styled terminal blocks. Markdown
// goes through glamour; everything else is lipgloss.
type renderer struct {
	markdown *glamour.TermRenderer
	persona  string
	width    int
}

func newRenderer(width int, persona string) *renderer {
	if width <= 0 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	return &renderer{markdown: r, persona: persona, width: width}
}

func (r *renderer) user(text string) string {
	label := lipgloss.NewStyle().Foreground(colorGreen).Bold(true).Render("▶ You")
	body := lipgloss.NewStyle().Foreground(colorWhite).Render(text)
	return label + "\n" + body
}

func (r *renderer) response(resp *entity.Response, elapsed time.Duration) string {
	label := lipgloss.NewStyle().Foreground(colorRed).Bold(true).Render("◆ " + r.persona)
	return label + "\n" + r.renderMarkdown(resp.Content) + "\n" + r.meta(resp, elapsed)
}

func (r *renderer) renderMarkdown(md string) string {
	if r.markdown == nil {
		return md
	}
	out, err := r.markdown.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}

// meta is the one-line trailer under each answer: how the pipeline got
// there, how long it took, and where the material came from.
func (r *renderer) meta(resp *entity.Response, elapsed time.Duration) string {
	gray := lipgloss.NewStyle().Foreground(colorGray)
	dim := lipgloss.NewStyle().Foreground(colorDim)

	parts := []string{string(resp.Method), formatElapsed(elapsed)}
	if resp.TimedOut {
		parts = append(parts, "timed out")
	}

	line := gray.Render("  " + strings.Join(parts, " · "))
	if resp.IsFallback() {
		line = lipgloss.NewStyle().Foreground(colorYellow).Render("  ⚠ " + strings.Join(parts, " · "))
	}

	if len(resp.Sources) > 0 {
		shown := resp.Sources
		more := ""
		if len(shown) > 3 {
			more = fmt.Sprintf(" +%d more", len(shown)-3)
			shown = shown[:3]
		}
		line += "\n" + dim.Render("  sources: "+strings.Join(shown, ", ")+more)
	}
	return line
}

func (r *renderer) notice(text string) string {
	return lipgloss.NewStyle().Foreground(colorYellow).Render("⚠ " + text)
}

func (r *renderer) help() string {
	title := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	cmd := lipgloss.NewStyle().Foreground(colorGreen)
	desc := lipgloss.NewStyle().Foreground(colorGray)

	rows := []struct{ name, text string }{
		{"/help", "this message"},
		{"/clear", "start a fresh conversation"},
		{"/quit", "leave (Ctrl+C works too)"},
	}

	var b strings.Builder
	b.WriteString(title.Render("Commands"))
	for _, row := range rows {
		b.WriteString("\n  " + cmd.Render(row.name) + "  " + desc.Render(row.text))
	}
	return b.String()
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
