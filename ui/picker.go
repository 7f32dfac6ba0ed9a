package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/yllada/merlink/common"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = common.JoinSentinel(common.ErrCancelled, errors.New("selection aborted"))

// IsInteractive reports whether stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Choose key.Binding
	Erase  key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+p"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+n"),
		key.WithHelp("↓", "down"),
	),
	Choose: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "choose"),
	),
	Erase: key.NewBinding(
		key.WithKeys("backspace"),
		key.WithHelp("backspace", "erase filter"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "cancel"),
	),
}

// pickerModel lists items and narrows them as the user types.
type pickerModel struct {
	title     string
	items     []string
	filter    string
	cursor    int
	chosen    string
	cancelled bool
}

func newPickerModel(title string, items []string) pickerModel {
	return pickerModel{title: title, items: items}
}

// visible returns the items matching the filter, in their original order.
func (m pickerModel) visible() []string {
	if m.filter == "" {
		return m.items
	}
	var out []string
	for _, it := range m.items {
		if common.ContainsFold(it, m.filter) {
			out = append(out, it)
		}
	}
	return out
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(kmsg, keys.Quit):
		m.cancelled = true
		return m, tea.Quit
	case key.Matches(kmsg, keys.Choose):
		if v := m.visible(); len(v) > 0 {
			m.chosen = v[m.cursor]
			return m, tea.Quit
		}
		return m, nil
	case key.Matches(kmsg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(kmsg, keys.Down):
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(kmsg, keys.Erase):
		if r := []rune(m.filter); len(r) > 0 {
			m.filter = string(r[:len(r)-1])
			m.cursor = 0
		}
		return m, nil
	}

	switch kmsg.Type {
	case tea.KeyRunes:
		m.filter += string(kmsg.Runes)
		m.cursor = 0
	case tea.KeySpace:
		m.filter += " "
		m.cursor = 0
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen != "" || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	if m.filter != "" {
		b.WriteString(filterStyle.Render("filter: " + m.filter))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	visible := m.visible()
	if len(visible) == 0 {
		b.WriteString(itemStyle.Render("no matches"))
		b.WriteString("\n")
	}
	for i, it := range visible {
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render("> " + it))
		} else {
			b.WriteString(itemStyle.Render(it))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("type to filter • ↑/↓ move • enter choose • esc cancel"))
	b.WriteString("\n")
	return b.String()
}

// PickerOption configures Pick.
type PickerOption func(*[]tea.ProgramOption)

// WithIO runs the picker on r and w instead of the terminal.
func WithIO(r io.Reader, w io.Writer) PickerOption {
	return func(opts *[]tea.ProgramOption) {
		*opts = append(*opts, tea.WithInput(r), tea.WithOutput(w))
	}
}

// Pick shows items and returns the one the user chooses.
func Pick(title string, items []string, opts ...PickerOption) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("nothing to choose for %q", title)
	}

	var programOpts []tea.ProgramOption
	for _, opt := range opts {
		opt(&programOpts)
	}

	final, err := tea.NewProgram(newPickerModel(title, items), programOpts...).Run()
	if err != nil {
		return "", fmt.Errorf("running picker: %w", err)
	}
	m, ok := final.(pickerModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type: %T", final)
	}
	if m.cancelled || m.chosen == "" {
		return "", ErrCancelled
	}
	return m.chosen, nil
}
