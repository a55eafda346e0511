// Package ui provides terminal user interface components for the
// analyzer.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"

	"github.com/invariantlabs-ai/invariant-go/internal/trace"
)

// ExplorerModel is the Bubble Tea model for the trace explorer: an
// event list on the left, the selected event's payload on the right.
type ExplorerModel struct {
	tr       *trace.Trace
	events   []*trace.Event
	cursor   int
	viewport viewport.Model
	ready    bool
	width    int
	height   int
	keymap   explorerKeyMap
	styles   explorerStyles
}

type explorerKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

type explorerStyles struct {
	title    lipgloss.Style
	selected lipgloss.Style
	kind     lipgloss.Style
	subtle   lipgloss.Style
	border   lipgloss.Style
}

func defaultExplorerKeyMap() explorerKeyMap {
	return explorerKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous event"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next event"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b"),
			key.WithHelp("pgup/b", "scroll payload up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "f"),
			key.WithHelp("pgdn/f", "scroll payload down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func defaultExplorerStyles() explorerStyles {
	return explorerStyles{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		kind:     lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		subtle:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		border:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("241")).Padding(0, 1),
	}
}

// NewExplorer creates an explorer over the given trace.
func NewExplorer(tr *trace.Trace) ExplorerModel {
	return ExplorerModel{
		tr:     tr,
		events: tr.Events(),
		keymap: defaultExplorerKeyMap(),
		styles: defaultExplorerStyles(),
	}
}

// Init implements tea.Model.
func (m ExplorerModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		detailWidth := m.width - m.listWidth() - 6
		detailHeight := m.height - 4
		if !m.ready {
			m.viewport = viewport.New(detailWidth, detailHeight)
			m.ready = true
		} else {
			m.viewport.Width = detailWidth
			m.viewport.Height = detailHeight
		}
		m.viewport.SetContent(m.detail())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Up):
			if m.cursor > 0 {
				m.cursor--
				m.viewport.SetContent(m.detail())
				m.viewport.GotoTop()
			}
		case key.Matches(msg, m.keymap.Down):
			if m.cursor < len(m.events)-1 {
				m.cursor++
				m.viewport.SetContent(m.detail())
				m.viewport.GotoTop()
			}
		case key.Matches(msg, m.keymap.PageUp):
			m.viewport.HalfViewUp()
		case key.Matches(msg, m.keymap.PageDown):
			m.viewport.HalfViewDown()
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m ExplorerModel) View() string {
	if !m.ready {
		return "loading trace..."
	}

	title := m.styles.title.Render(fmt.Sprintf("Trace %s (%d events)", m.tr.TraceID, len(m.events)))
	list := m.styles.border.Width(m.listWidth()).Render(m.eventList())
	detail := m.styles.border.Render(m.viewport.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	help := m.styles.subtle.Render("↑/↓ select · pgup/pgdn scroll · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, body, help)
}

func (m ExplorerModel) listWidth() int {
	w := m.width / 3
	if w < 28 {
		w = 28
	}
	return w
}

func (m ExplorerModel) eventList() string {
	var b strings.Builder
	visible := m.height - 4
	start := 0
	if m.cursor >= visible && visible > 0 {
		start = m.cursor - visible + 1
	}
	for i := start; i < len(m.events) && i-start < visible; i++ {
		ev := m.events[i]
		line := fmt.Sprintf("%s %s", m.styles.kind.Render(ev.TypeName()), snippet(ev, m.listWidth()-14))
		if i == m.cursor {
			line = m.styles.selected.Render("▸ ") + line
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// detail renders the selected event: identity, address, payload and
// dataflow position.
func (m ExplorerModel) detail() string {
	if len(m.events) == 0 {
		return "empty trace"
	}
	ev := m.events[m.cursor]

	var b strings.Builder
	b.WriteString(m.styles.kind.Render(ev.TypeName()) + "\n")
	b.WriteString(m.styles.subtle.Render("address: ") + ev.Address() + "\n")
	b.WriteString(m.styles.subtle.Render("ancestors: ") + fmt.Sprintf("%d", m.tr.Flow().Ancestors(ev.ID())) + "\n\n")

	payload := payloadFor(ev)
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return b.String() + fmt.Sprintf("unrenderable payload: %v", err)
	}
	b.Write(encoded)
	return b.String()
}

func payloadFor(ev *trace.Event) any {
	switch ev.Kind {
	case trace.KindMessage:
		if ev.Msg.Raw != nil {
			return ev.Msg.Raw
		}
		return ev.Msg
	case trace.KindToolCall:
		if ev.Call.Raw != nil {
			return ev.Call.Raw
		}
		return ev.Call
	default:
		if ev.Out.Raw != nil {
			return ev.Out.Raw
		}
		return ev.Out
	}
}

func snippet(ev *trace.Event, width int) string {
	var text string
	if ev.Kind == trace.KindToolCall {
		text = ev.Call.Function.Name
	} else {
		text = ev.Content()
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if width > 3 && len(text) > width {
		text = text[:width-3] + "..."
	}
	return text
}
