// Package tui is a terminal chat client for the router.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"supportmesh/internal/client"
	"supportmesh/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	youStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	meshStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	metaStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	urgentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

type chatEntry struct {
	from string
	text string
	meta string
	err  bool
}

type answerMsg struct {
	resp *types.AggregatedResponse
	err  error
}

type model struct {
	client   *client.Client
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	entries  []chatEntry
	waiting  bool
	width    int
	height   int
	ready    bool
}

func newModel(c *client.Client) model {
	input := textinput.New()
	input.Placeholder = "Ask about a customer, a case, or anything support related"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{client: c, input: input, spinner: sp}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 4
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.waiting {
				return m, nil
			}
			m.entries = append(m.entries, chatEntry{from: "you", text: query})
			m.input.Reset()
			m.waiting = true
			m.refreshViewport()
			return m, tea.Batch(m.spinner.Tick, m.ask(query))
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.entries = append(m.entries, chatEntry{from: "mesh", text: msg.err.Error(), err: true})
		} else {
			meta := fmt.Sprintf("%s | %s | %d task(s)", msg.resp.Strategy, msg.resp.Priority, len(msg.resp.Results))
			m.entries = append(m.entries, chatEntry{from: "mesh", text: msg.resp.Answer, meta: meta})
		}
		m.refreshViewport()
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) ask(query string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		resp, err := c.Query(ctx, query)
		return answerMsg{resp: resp, err: err}
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	wrapWidth := m.viewport.Width - 2
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	var b strings.Builder
	for _, e := range m.entries {
		label := youStyle.Render("you")
		if e.from == "mesh" {
			label = meshStyle.Render("mesh")
		}
		text := e.text
		if e.err {
			text = errStyle.Render(text)
		} else if strings.HasPrefix(text, "[URGENT]") {
			text = urgentStyle.Render("[URGENT]") + strings.TrimPrefix(text, "[URGENT]")
		}
		b.WriteString(label + " " + ansi.Wrap(text, wrapWidth, "") + "\n")
		if e.meta != "" {
			b.WriteString(metaStyle.Render("  "+e.meta) + "\n")
		}
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}
	status := ""
	if m.waiting {
		status = m.spinner.View() + " thinking"
	}
	return headerStyle.Render("supportmesh chat") + "  " + metaStyle.Render("(esc to quit)") + "\n" +
		m.viewport.View() + "\n" +
		m.input.View() + "\n" +
		status
}

// Run starts the chat UI against a router client and blocks until exit.
func Run(c *client.Client) error {
	_, err := tea.NewProgram(newModel(c), tea.WithAltScreen()).Run()
	return err
}
