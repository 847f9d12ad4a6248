package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tetherlabs/tether/internal/config"
	"github.com/tetherlabs/tether/internal/controller"
)

type styles struct {
	header     lipgloss.Style
	connected  lipgloss.Style
	offline    lipgloss.Style
	status     lipgloss.Style
	thought    lipgloss.Style
	tool       lipgloss.Style
	code       lipgloss.Style
	errText    lipgloss.Style
	answer     lipgloss.Style
	answerHead lipgloss.Style
	footer     lipgloss.Style
	inputHint  lipgloss.Style
}

func newStyles() styles {
	return styles{
		header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		connected:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		offline:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		status:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		thought:    lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Italic(true),
		tool:       lipgloss.NewStyle().Foreground(lipgloss.Color("221")),
		code:       lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1),
		errText:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		answer:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		answerHead: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		footer:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		inputHint:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
	}
}

type model struct {
	cfg  *config.Config
	ctrl *controller.Controller

	transcript []string
	controls   controller.Controls
	connected  bool
	lastReason string

	input    textinput.Model
	view     viewport.Model
	spin     spinner.Model
	styles   styles
	ready    bool
	width    int
	height   int
	quitting bool
}

func newModel(cfg *config.Config, ctrl *controller.Controller) model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Describe a task and press enter"
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		cfg:    cfg,
		ctrl:   ctrl,
		input:  input,
		view:   viewport.New(0, 0),
		spin:   sp,
		styles: newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 4 // header, input, footer, padding
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-chromeHeight, 1)
		m.ready = true
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if !m.controls.StartEnabled {
				return m, nil
			}
			task := m.input.Value()
			m.input.Reset()
			return m, m.startCmd(task)
		case "ctrl+x":
			if !m.controls.StopEnabled {
				return m, nil
			}
			return m, m.stopCmd()
		}

	case effectMsg:
		m.transcript = append(m.transcript, m.renderEffect(msg.effect))
		m.refreshViewport()
		return m, nil

	case clearMsg:
		m.transcript = nil
		m.refreshViewport()
		return m, nil

	case controlsMsg:
		m.controls = msg.controls
		return m, nil

	case connectedMsg:
		m.connected = true
		m.lastReason = ""
		return m, nil

	case disconnectedMsg:
		m.connected = false
		m.lastReason = msg.reason
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// startCmd submits the task off the UI goroutine. Validation errors come
// back through the effect stream, so the result here is discarded.
func (m model) startCmd(task string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		_ = ctrl.Start(task)
		return nil
	}
}

func (m model) stopCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		_ = ctrl.Stop()
		return nil
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	m.view.SetContent(strings.Join(m.transcript, "\n"))
	m.view.GotoBottom()
}

func (m model) renderEffect(e controller.Effect) string {
	switch e.Kind {
	case controller.EffectStatus:
		return m.styles.status.Render("• " + e.Text)
	case controller.EffectThought:
		return m.styles.thought.Render(e.Text)
	case controller.EffectToolCall:
		return m.styles.tool.Render("⚙ " + e.Text)
	case controller.EffectToolResult:
		return m.styles.tool.Render(e.Text)
	case controller.EffectCode:
		return m.styles.code.Render(e.Text)
	case controller.EffectError:
		return m.styles.errText.Render("✗ " + e.Text)
	case controller.EffectAnswer:
		return m.styles.answerHead.Render("Final answer") + "\n" + m.styles.answer.Render(e.Text)
	default:
		return m.styles.status.Render(e.Text)
	}
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}

	badge := m.styles.offline.Render("● offline")
	if m.connected {
		badge = m.styles.connected.Render("● connected")
	}
	header := m.styles.header.Render("tether") + "  " + badge
	if !m.connected && m.lastReason != "" {
		header += "  " + m.styles.offline.Render("("+m.lastReason+")")
	}

	inputLine := m.input.View()
	if !m.controls.StartEnabled {
		inputLine = m.styles.inputHint.Render("waiting for connection to " + m.cfg.ServerURL + " ...")
	}

	var footer string
	switch {
	case m.controls.StopEnabled:
		footer = m.spin.View() + " running — ctrl+x stop · ctrl+c quit"
	case m.controls.StartEnabled:
		footer = "enter start · ctrl+c quit"
	default:
		footer = "ctrl+c quit"
	}

	return strings.Join([]string{
		header,
		m.view.View(),
		inputLine,
		m.styles.footer.Render(footer),
	}, "\n")
}
