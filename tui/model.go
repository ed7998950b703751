// Package tui renders the board in the terminal and drives drag gestures
// from the keyboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"kanflow/board"
	"kanflow/domain"
)

const (
	toastDuration = 4 * time.Second
	reloadTimeout = 10 * time.Second
)

var columnTitles = map[domain.Status]string{
	domain.StatusTodo:       "To Do",
	domain.StatusInProgress: "In Progress",
	domain.StatusReview:     "Review",
	domain.StatusDone:       "Done",
}

type (
	storeChangedMsg struct{ version uint64 }
	notifyMsg       struct{ n board.Notification }
	reloadedMsg     struct{ err error }
	toastExpiredMsg struct{ seq int }
)

// Bridge forwards store changes and commit notifications into a running
// program. Messages sent before Attach are dropped.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

// Notify implements board.Notifier.
func (b *Bridge) Notify(n board.Notification) { b.send(notifyMsg{n: n}) }

// StoreChanged is meant for board.Store.OnChange.
func (b *Bridge) StoreChanged(version uint64) { b.send(storeChangedMsg{version: version}) }

// send never blocks: Send on a busy program would deadlock callers running
// inside Update.
func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		go p.Send(msg)
	}
}

// Model is the board screen.
type Model struct {
	store *board.Store
	ctrl  *board.Controller
	keys  KeyMap
	help  help.Model
	spin  spinner.Model

	col, row      int
	width, height int
	loading       bool
	version       uint64

	toast    string
	toastErr bool
	toastSeq int
}

// New returns a board screen over store. Gestures go through ctrl.
func New(store *board.Store, ctrl *board.Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		store:   store,
		ctrl:    ctrl,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spin:    s,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.reloadCmd())
}

func (m Model) reloadCmd() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
		defer cancel()
		return reloadedMsg{err: store.Reload(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case reloadedMsg:
		m.loading = false
		if msg.err != nil {
			return m.showToast("could not load board: "+msg.err.Error(), true)
		}
		m.clampCursor()
		return m, nil

	case storeChangedMsg:
		m.version = msg.version
		m.clampCursor()
		return m, nil

	case notifyMsg:
		return m.showToast(msg.n.Message, msg.n.Err != nil)

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.ctrl.State() == board.Dragging {
			return m.updateDragging(msg)
		}
		return m.updateIdle(msg)
	}
	return m, nil
}

func (m Model) updateIdle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Reload):
		m.loading = true
		return m, tea.Batch(m.spin.Tick, m.reloadCmd())
	case key.Matches(msg, m.keys.Up):
		m.row--
		m.clampCursor()
	case key.Matches(msg, m.keys.Down):
		m.row++
		m.clampCursor()
	case key.Matches(msg, m.keys.Left):
		m.col--
		m.clampCursor()
	case key.Matches(msg, m.keys.Right):
		m.col++
		m.clampCursor()
	case key.Matches(msg, m.keys.Pick):
		if t, ok := m.focused(); ok {
			if t.External() {
				return m.showToast(fmt.Sprintf("%s is read-only (%s)", t.Title, t.Source), true)
			}
			m.ctrl.Start(t.ID)
		}
	}
	return m, nil
}

func (m Model) updateDragging(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.ctrl.Cancel()
		m.clampCursor()
	case key.Matches(msg, m.keys.Drop):
		err := m.ctrl.End(m.ctrl.Hovering())
		m.clampCursor()
		if err != nil {
			return m.showToast(err.Error(), true)
		}
	case key.Matches(msg, m.keys.Up):
		m.hoverAt(m.col, m.row-1)
	case key.Matches(msg, m.keys.Down):
		m.hoverAt(m.col, m.row+1)
	case key.Matches(msg, m.keys.Left):
		m.hoverAt(m.col-1, m.row)
	case key.Matches(msg, m.keys.Right):
		m.hoverAt(m.col+1, m.row)
	}
	return m, nil
}

// hoverAt moves the dragged task to the cell at col, row: over the task
// there, or over the column when it has no task at that row.
func (m *Model) hoverAt(col, row int) {
	if col < 0 || col >= len(domain.Statuses) {
		return
	}
	cols := columns(m.ctrl.Working())
	cards := cols[col]
	if row < 0 {
		row = 0
	}
	var target domain.Target
	switch {
	case col == m.col && row >= len(cards):
		return
	case len(cards) == 0:
		target = domain.ColumnTarget(domain.Statuses[col])
	default:
		if row >= len(cards) {
			row = len(cards) - 1
		}
		target = domain.TaskTarget(cards[row].ID)
	}
	m.ctrl.Hover(target)
	m.follow(m.ctrl.Active())
}

// follow moves the cursor onto the task with the given id.
func (m *Model) follow(id string) {
	for c, cards := range columns(m.ctrl.Working()) {
		for r, t := range cards {
			if t.ID == id {
				m.col, m.row = c, r
				return
			}
		}
	}
}

func (m Model) showToast(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.toast = text
	m.toastErr = isErr
	m.toastSeq++
	seq := m.toastSeq
	return m, tea.Tick(toastDuration, func(time.Time) tea.Msg { return toastExpiredMsg{seq: seq} })
}

func (m Model) focused() (domain.Task, bool) {
	cols := columns(m.ctrl.Working())
	if m.col < 0 || m.col >= len(cols) || m.row < 0 || m.row >= len(cols[m.col]) {
		return domain.Task{}, false
	}
	return cols[m.col][m.row], true
}

func (m *Model) clampCursor() {
	if m.col < 0 {
		m.col = 0
	}
	if m.col >= len(domain.Statuses) {
		m.col = len(domain.Statuses) - 1
	}
	n := len(columns(m.ctrl.Working())[m.col])
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// columns groups tasks by status, keeping list order within a column.
func columns(tasks []domain.Task) [][]domain.Task {
	out := make([][]domain.Task, len(domain.Statuses))
	for _, t := range tasks {
		if c := t.Status.Column(); c >= 0 && c < len(out) {
			out[c] = append(out[c], t)
		}
	}
	return out
}

func (m Model) View() string {
	var b strings.Builder
	header := headerStyle.Render("KanFlow")
	if m.loading {
		header += " " + m.spin.View() + mutedStyle.Render(" loading")
	}
	if m.ctrl.State() == board.Dragging {
		header += mutedStyle.Render("  moving " + m.ctrl.Active())
	}
	b.WriteString(header + "\n\n")

	width := 24
	if m.width > 0 {
		width = max(m.width/len(domain.Statuses)-4, 12)
	}
	cols := columns(m.ctrl.Working())
	rendered := make([]string, len(cols))
	for i, cards := range cols {
		rendered[i] = m.renderColumn(i, cards, width)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n")

	if m.toast != "" {
		style := toastStyle
		if m.toastErr {
			style = toastErrorStyle
		}
		b.WriteString(style.Render(m.toast) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) renderColumn(col int, cards []domain.Task, width int) string {
	status := domain.Statuses[col]
	lines := []string{columnTitleStyle.Render(fmt.Sprintf("%s (%d)", columnTitles[status], len(cards))), ""}
	if len(cards) == 0 {
		lines = append(lines, mutedStyle.Render("empty"))
	}
	for row, t := range cards {
		lines = append(lines, m.renderCard(t, col == m.col && row == m.row, width))
	}
	style := columnStyle
	if col == m.col {
		style = columnActiveStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderCard(t domain.Task, focused bool, width int) string {
	title := truncate(t.Title, width-2)
	style := cardStyle
	switch {
	case t.ID == m.ctrl.Active():
		style = draggingStyle
	case focused:
		style = selectedStyle
	}
	line := style.Render(title)
	meta := priorityStyles[t.Priority].Render(string(t.Priority))
	if t.Source != "" {
		meta += mutedStyle.Render(" ⇄ " + t.Source)
	}
	if t.Assignee != "" {
		meta += mutedStyle.Render(" @" + t.Assignee)
	}
	return line + "\n" + meta
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
