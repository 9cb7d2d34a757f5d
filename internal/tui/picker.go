// Package tui provides the interactive checkpoint picker used by
// resume --pick.
package tui

import (
	"fmt"
	"strings"

	"ariadne/internal/checkpoint"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PickerItem pairs a checkpoint with its store ID.
type PickerItem struct {
	ID     string
	Record *checkpoint.Record
}

// pickerEntry adapts PickerItem to list.Item.
type pickerEntry struct {
	item PickerItem
}

func (e pickerEntry) Title() string { return e.item.Record.Label }

func (e pickerEntry) Description() string {
	return fmt.Sprintf("%s · %s", e.item.ID,
		e.item.Record.CreatedAt.Local().Format("2006-01-02 15:04"))
}

func (e pickerEntry) FilterValue() string {
	return e.item.Record.Label + " " + e.item.Record.Task
}

type pickerStyles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	muted   lipgloss.Style
	preview lipgloss.Style
}

func defaultPickerStyles() pickerStyles {
	return pickerStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		header:  lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		preview: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// PickerModel is a two-pane browser: checkpoints on the left, the
// highlighted record on the right. Enter chooses, q cancels.
type PickerModel struct {
	list     list.Model
	viewport viewport.Model

	width         int
	height        int
	focusViewport bool

	highlighted string
	chosen      string
	styles      pickerStyles
}

// NewPicker builds the model. Items should already be newest first.
func NewPicker(items []PickerItem) PickerModel {
	entries := make([]list.Item, len(items))
	for i, item := range items {
		entries[i] = pickerEntry{item: item}
	}

	styles := defaultPickerStyles()

	l := list.New(entries, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Checkpoints"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = styles.title

	vp := viewport.New(0, 0)
	vp.SetContent("Select a checkpoint to preview it.")

	m := PickerModel{list: l, viewport: vp, styles: styles}
	if len(items) > 0 {
		m.highlighted = items[0].ID
		m.viewport.SetContent(m.renderRecord(items[0]))
	}
	return m
}

// Choice returns the chosen checkpoint ID, empty when cancelled.
func (m PickerModel) Choice() string { return m.chosen }

// Init implements tea.Model.
func (m PickerModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m PickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if m.list.FilterState() != list.Filtering {
			switch msg.String() {
			case "q", "ctrl+c", "esc":
				return m, tea.Quit
			case "enter":
				if sel, ok := m.list.SelectedItem().(pickerEntry); ok {
					m.chosen = sel.item.ID
				}
				return m, tea.Quit
			case "tab":
				m.focusViewport = !m.focusViewport
				return m, nil
			}
		}
	}

	_, isKey := msg.(tea.KeyMsg)
	if !isKey || !m.focusViewport || m.list.FilterState() == list.Filtering {
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}
	if !isKey || (m.focusViewport && m.list.FilterState() != list.Filtering) {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	if sel, ok := m.list.SelectedItem().(pickerEntry); ok && sel.item.ID != m.highlighted {
		m.highlighted = sel.item.ID
		m.viewport.SetContent(m.renderRecord(sel.item))
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m PickerModel) View() string {
	if m.width == 0 {
		return "loading..."
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.list.View(),
		m.styles.preview.Render(m.viewport.View()),
	)
}

func (m *PickerModel) setSize(width, height int) {
	m.width = width
	m.height = height

	listWidth := width * 2 / 5
	m.list.SetSize(listWidth, height)
	m.viewport.Width = width - listWidth - 4
	m.viewport.Height = height - 2
}

// renderRecord formats one checkpoint for the preview pane.
func (m PickerModel) renderRecord(item PickerItem) string {
	rec := item.Record
	var b strings.Builder

	b.WriteString(m.styles.header.Render(rec.Label))
	b.WriteString("\n")
	b.WriteString(m.styles.muted.Render(item.ID))
	b.WriteString("\n")

	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString("\n")
		b.WriteString(m.styles.header.Render(label))
		b.WriteString("\n" + value + "\n")
	}
	items := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		b.WriteString("\n")
		b.WriteString(m.styles.header.Render(label))
		b.WriteString("\n")
		for _, v := range values {
			b.WriteString("- " + v + "\n")
		}
	}

	field("Task", rec.Task)
	if rec.Branch != "" {
		loc := rec.Branch
		if rec.GitSHA != "" {
			loc += " @ " + rec.GitSHA
		}
		field("Branch", loc)
	}
	items("Decisions", rec.Decisions)
	items("Progress", rec.ProgressChecklist)
	items("Next steps", rec.NextSteps)
	field("Resumption hints", rec.ResumptionHints)

	return b.String()
}

// Pick runs the picker over items and returns the chosen ID, or empty
// when the user cancels.
func Pick(items []PickerItem) (string, error) {
	p := tea.NewProgram(NewPicker(items), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	model, ok := final.(PickerModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from picker")
	}
	return model.Choice(), nil
}
