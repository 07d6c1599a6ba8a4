// Package confirm asks the operator to approve an oversized run before any
// request is sent.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ErrAborted is returned when the run was declined or nobody could be asked.
var ErrAborted = errors.New("run aborted")

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFA500"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575")).Underline(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// Prompt is the question shown to the operator.
type Prompt struct {
	Title   string
	Details []string
}

// Required reports whether a run of planned requests needs approval.
// A threshold of zero or less never asks.
func Required(planned, threshold int, assumeYes bool) bool {
	return !assumeYes && threshold > 0 && planned > threshold
}

// IsTerminal reports whether f is attached to an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Ask shows p on out and waits for a yes/no answer on in. It returns nil when
// the operator accepts and an error wrapping ErrAborted otherwise, including
// when in is not a terminal.
func Ask(ctx context.Context, in *os.File, out io.Writer, p Prompt) error {
	if !IsTerminal(in) {
		return fmt.Errorf("%w: stdin is not a terminal, pass --yes to run without confirmation", ErrAborted)
	}
	return ask(ctx, in, out, p)
}

func ask(ctx context.Context, in io.Reader, out io.Writer, p Prompt) error {
	program := tea.NewProgram(newModel(p),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := program.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
		}
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	m, ok := final.(model)
	if !ok || !m.accepted {
		return fmt.Errorf("%w: declined by user", ErrAborted)
	}
	return nil
}

type keyMap struct {
	Yes    key.Binding
	No     key.Binding
	Toggle key.Binding
	Submit key.Binding
}

var keys = keyMap{
	Yes: key.NewBinding(
		key.WithKeys("y", "Y"),
		key.WithHelp("y", "run"),
	),
	No: key.NewBinding(
		key.WithKeys("n", "N", "q", "esc", "ctrl+c"),
		key.WithHelp("n/esc", "abort"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("left", "right", "tab", "h", "l"),
		key.WithHelp("←/→", "choose"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "confirm"),
	),
}

type model struct {
	prompt   Prompt
	onYes    bool // cursor position; starts on "No"
	accepted bool
	done     bool
}

func newModel(p Prompt) model {
	return model{prompt: p}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, keys.Yes):
		m.accepted = true
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, keys.No):
		m.accepted = false
		m.done = true
		return m, tea.Quit
	case key.Matches(keyMsg, keys.Toggle):
		m.onYes = !m.onYes
	case key.Matches(keyMsg, keys.Submit):
		m.accepted = m.onYes
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.prompt.Title))
	b.WriteString("\n")
	for _, line := range m.prompt.Details {
		b.WriteString(detailStyle.Render("  " + line))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	yes, no := idleStyle.Render("[ Yes ]"), selectedStyle.Render("[ No ]")
	if m.onYes {
		yes, no = selectedStyle.Render("[ Yes ]"), idleStyle.Render("[ No ]")
	}
	b.WriteString("  " + yes + "  " + no + "\n")

	help := []string{}
	for _, binding := range []key.Binding{keys.Yes, keys.No, keys.Toggle, keys.Submit} {
		h := binding.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	b.WriteString(helpStyle.Render(strings.Join(help, " • ")))
	b.WriteString("\n")
	return b.String()
}
