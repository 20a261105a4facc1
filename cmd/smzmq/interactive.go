package main

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-zmq/extension"
)

const maxLogLines = 200

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	pollStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0E68C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// completionsMsg signals that poll results are waiting in the queue.
type completionsMsg struct{}

// unloadedMsg signals that the completion queue was closed.
type unloadedMsg struct{}

// consoleModel is the interactive console. Its Update loop is the host
// execution context: poll callbacks only run from there.
type consoleModel struct {
	ctx     context.Context
	ext     *extension.Extension
	console *console
	input   textinput.Model
	log     []string
	height  int
}

func newConsoleModel(ctx context.Context, ext *extension.Extension) *consoleModel {
	ti := textinput.New()
	ti.Placeholder = "help"
	ti.Prompt = "smzmq> "
	ti.Width = 72
	ti.Focus()

	m := &consoleModel{ctx: ctx, ext: ext, input: ti}
	m.console = newConsole(ext, func(s string) { m.append(pollStyle.Render(s)) })
	return m
}

func (m *consoleModel) append(lines ...string) {
	for _, l := range lines {
		m.log = append(m.log, strings.Split(l, "\n")...)
	}
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// waitCompletions blocks until the queue has something to dispatch.
func (m *consoleModel) waitCompletions() tea.Msg {
	q := m.ext.Queue()
	select {
	case <-q.Ready():
		return completionsMsg{}
	case <-q.Done():
		return unloadedMsg{}
	case <-m.ctx.Done():
		return unloadedMsg{}
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitCompletions)
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if line == "quit" || line == "exit" {
				return m, tea.Quit
			}
			m.append(commandStyle.Render("> " + line))
			res, err := m.console.exec(line)
			switch {
			case err != nil:
				m.append(errorStyle.Render(err.Error()))
			case res != "":
				m.append(resultStyle.Render(res))
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - len(m.input.Prompt) - 1

	case completionsMsg:
		m.ext.Dispatch(m.ctx)
		return m, m.waitCompletions

	case unloadedMsg:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("smzmq console"))
	b.WriteString("\n\n")

	visible := m.log
	if m.height > 6 && len(visible) > m.height-6 {
		visible = visible[len(visible)-(m.height-6):]
	}
	for _, l := range visible {
		b.WriteString(l)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter run • help commands • esc quit"))
	return b.String()
}

func runInteractive(ctx context.Context, ext *extension.Extension) error {
	p := tea.NewProgram(newConsoleModel(ctx, ext), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
