package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

type responseMsg struct {
	resp    *entity.Response
	elapsed time.Duration
}

type rateLimitedMsg struct{}

type errMsg struct{ err error }

// model is the bubbletea state for the chat screen: a scrolling
// transcript viewport over a single-line input.
type model struct {
	pipeline Pipeline
	logger   *zap.Logger

	sessionID string
	userID    string
	persona   string

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	render   *renderer

	transcript []string
	waiting    bool
	ready      bool
	width      int
	height     int
	quitting   bool
}

func newModel(pipeline Pipeline, cfg Config, logger *zap.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything"
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(colorRed)
	ti.CharLimit = 2000
	ti.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(colorRed)),
	)

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = freshSessionID()
	}
	persona := cfg.Persona
	if persona == "" {
		persona = "Assistant"
	}

	return model{
		pipeline:  pipeline,
		logger:    logger,
		sessionID: sessionID,
		userID:    localUserID(),
		persona:   persona,
		input:     ti,
		spin:      sp,
		render:    newRenderer(80, persona),
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.render = newRenderer(msg.Width, m.persona)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewportHeight(msg.Height))
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewportHeight(msg.Height)
		}
		m.input.Width = msg.Width - 4
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(text, "/") {
				return m.runCommand(text)
			}
			m.transcript = append(m.transcript, m.render.user(text))
			m.waiting = true
			m.syncViewport()
			return m, tea.Batch(m.spin.Tick, m.ask(text))
		}

	case responseMsg:
		m.waiting = false
		m.transcript = append(m.transcript, m.render.response(msg.resp, msg.elapsed))
		m.syncViewport()
		return m, nil

	case rateLimitedMsg:
		m.waiting = false
		m.transcript = append(m.transcript, m.render.notice("One question at a time. Give it a second and retry."))
		m.syncViewport()
		return m, nil

	case errMsg:
		m.waiting = false
		m.transcript = append(m.transcript, m.render.notice("Error: "+msg.err.Error()))
		m.syncViewport()
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  starting..."
	}
	return m.viewport.View() + "\n" + m.input.View() + "\n" + m.statusLine()
}

// ask hands the question to the pipeline off the event loop. The
// pipeline enforces its own deadline, so no timeout wrapper here.
func (m model) ask(text string) tea.Cmd {
	pipeline, userID, sessionID := m.pipeline, m.userID, m.sessionID
	return func() tea.Msg {
		query, err := entity.NewQuery(userID, sessionID, text, false)
		if err != nil {
			return errMsg{err}
		}
		start := time.Now()
		resp := pipeline.Handle(context.Background(), query, "tui")
		if resp == nil {
			return rateLimitedMsg{}
		}
		return responseMsg{resp: resp, elapsed: time.Since(start)}
	}
}

func (m model) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch strings.TrimPrefix(fields[0], "/") {
	case "help":
		m.transcript = append(m.transcript, m.render.help())
	case "clear", "new":
		// A fresh session id is all it takes: conversation memory is
		// keyed by session, so the old window simply ages out.
		m.sessionID = freshSessionID()
		m.transcript = nil
	case "quit", "exit", "q":
		m.quitting = true
		return m, tea.Quit
	default:
		m.transcript = append(m.transcript, m.render.notice("Unknown command. /help lists what works here."))
	}
	m.syncViewport()
	return m, nil
}

func (m *model) syncViewport() {
	if !m.ready {
		return
	}
	if len(m.transcript) == 0 {
		m.viewport.SetContent(RenderBanner(BannerInfo{
			Persona: m.persona,
			Session: m.sessionID,
		}, m.width))
		m.viewport.GotoTop()
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

func (m model) statusLine() string {
	if m.waiting {
		return m.spin.View() + " " + lipgloss.NewStyle().Foreground(colorGray).Italic(true).Render("thinking...")
	}
	hint := lipgloss.NewStyle().Foreground(colorDim)
	return hint.Render("  " + m.persona + " · " + shortSession(m.sessionID) + " · /help")
}

func shortSession(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

// two rows for the input line and the status line
func viewportHeight(total int) int {
	h := total - 2
	if h < 1 {
		h = 1
	}
	return h
}
