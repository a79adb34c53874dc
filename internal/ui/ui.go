package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"echotask/internal/config"
	"echotask/internal/manager"
	"echotask/internal/rewrite"
	"echotask/internal/task"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeSearch
	modeTagFilter
	modeSubtaskAdd
	modeSubtaskPick
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	dueStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// addState walks the staged add prompt: raw text, then tags, then due date.
type addState struct {
	raw   string
	tags  string
	due   string
	index int
}

func addFields() []string {
	return []string{"task text", "tags (comma separated)", "due date (YYYY-MM-DD, optional)"}
}

func (as addState) currentValue() string {
	switch as.index {
	case 0:
		return as.raw
	case 1:
		return as.tags
	default:
		return as.due
	}
}

func (as *addState) setCurrentValue(v string) {
	switch as.index {
	case 0:
		as.raw = v
	case 1:
		as.tags = v
	default:
		as.due = v
	}
}

type rewriteResultMsg struct {
	taskID string
	text   string
	err    error
}

type Model struct {
	mgr      *manager.Manager
	rewriter *rewrite.Client
	cfg      config.Config

	tasks      []task.Task
	cursor     int
	mode       mode
	input      textinput.Model
	status     string
	add        *addState
	confirmDel bool
	pendingDel *task.Task
	subParent  string
}

// Run starts the interactive session. The rewriter may be nil when the
// cloud collaborator is disabled; the local rewrite always works.
func Run(mgr *manager.Manager, rewriter *rewrite.Client, cfg config.Config) error {
	if err := mgr.Refresh(context.Background()); err != nil {
		return err
	}

	ti := textinput.New()
	ti.Placeholder = "task text"
	ti.CharLimit = 512
	ti.Width = 40

	m := Model{
		mgr:      mgr,
		rewriter: rewriter,
		cfg:      cfg,
		tasks:    mgr.Tasks(),
		status:   "Press 'a' to add, space to toggle, 'd' to delete.",
		input:    ti,
		mode:     modeList,
	}
	m.cursor = clampCursor(0, len(m.tasks))

	program := tea.NewProgram(m)
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.confirmDel {
			return m.updateDeleteConfirm(msg.String())
		}
		if m.mode != modeList {
			return m.updateInputMode(msg.String(), msg)
		}
		return m.updateListMode(msg.String())
	case rewriteResultMsg:
		return m.applyRewriteResult(msg)
	case tea.WindowSizeMsg:
		m.input.Width = msg.Width - 10
	}
	return m, nil
}

// reload pulls the freshly derived sequence and keeps the cursor in range.
func (m *Model) reload() {
	m.tasks = m.mgr.Tasks()
	m.cursor = clampCursor(m.cursor, len(m.tasks))
}

func (m Model) selected() (task.Task, bool) {
	if len(m.tasks) == 0 {
		return task.Task{}, false
	}
	return m.tasks[clampCursor(m.cursor, len(m.tasks))], true
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		if len(m.tasks) > 0 {
			m.cursor = clampCursor(m.cursor+1, len(m.tasks))
		}
	case m.cfg.Keys.Up, "up":
		if m.cursor > 0 {
			m.cursor = clampCursor(m.cursor-1, len(m.tasks))
		}
	case m.cfg.Keys.Add:
		m.add = &addState{}
		m.mode = modeAdd
		m.input.SetValue("")
		m.input.Placeholder = addFields()[0]
		m.input.Focus()
		m.status = "Add mode: enter to advance, esc to cancel"
	case m.cfg.Keys.Toggle:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.mgr.Toggle(ctx, t.ID); err != nil {
			m.status = fmt.Sprintf("toggle failed: %v", err)
			return m, nil
		}
		m.reload()
		m.status = "Toggled task"
	case m.cfg.Keys.Complete:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		if err := m.mgr.CompleteTask(ctx, t.ID); err != nil {
			m.status = fmt.Sprintf("complete failed: %v", err)
			return m, nil
		}
		m.reload()
		m.status = "Completed task and all subtasks"
	case m.cfg.Keys.Delete:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.confirmDel = true
		m.pendingDel = &t
		m.status = fmt.Sprintf("Delete %q? y/n", t.DisplayText())
	case m.cfg.Keys.CycleFilter:
		next := nextFilter(m.mgr.Criteria().Status)
		if err := m.mgr.SetStatusFilter(ctx, next); err != nil {
			m.status = fmt.Sprintf("filter failed: %v", err)
			return m, nil
		}
		m.reload()
		m.status = fmt.Sprintf("Filter: %s", next)
	case m.cfg.Keys.Search:
		m.mode = modeSearch
		m.input.SetValue(m.mgr.Criteria().Search)
		m.input.Placeholder = "search text"
		m.input.Focus()
		m.status = "Search: enter to apply, empty clears, esc to cancel"
	case m.cfg.Keys.TagFilter:
		m.mode = modeTagFilter
		m.input.SetValue(task.FormatTags(m.mgr.Criteria().Tags))
		m.input.Placeholder = "tags (comma separated)"
		m.input.Focus()
		m.status = "Tag filter: every listed tag must match, empty clears"
	case m.cfg.Keys.MoveUp:
		return m.moveSelected(ctx, -1)
	case m.cfg.Keys.MoveDown:
		return m.moveSelected(ctx, +1)
	case m.cfg.Keys.Subtask:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.subParent = t.ID
		m.mode = modeSubtaskAdd
		m.input.SetValue("")
		m.input.Placeholder = "subtask text"
		m.input.Focus()
		m.status = "Add subtask: enter to save, esc to cancel"
	case m.cfg.Keys.SubtaskToggle:
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		if len(t.Subtasks) == 0 {
			m.status = "No subtasks on this task"
			return m, nil
		}
		m.subParent = t.ID
		m.mode = modeSubtaskPick
		m.input.SetValue("")
		m.input.Placeholder = "subtask number"
		m.input.Focus()
		m.status = "Toggle subtask by number; prefix with '-' to remove"
	case m.cfg.Keys.Rewrite:
		return m.rewriteSelected(ctx)
	}
	return m, nil
}

// moveSelected swaps the selected task with a neighbor and persists the
// whole visible sequence as the new manual order.
func (m Model) moveSelected(ctx context.Context, delta int) (tea.Model, tea.Cmd) {
	if len(m.tasks) == 0 {
		return m, nil
	}
	target := m.cursor + delta
	if target < 0 || target >= len(m.tasks) {
		return m, nil
	}
	ids := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		ids[i] = t.ID
	}
	ids[m.cursor], ids[target] = ids[target], ids[m.cursor]
	if err := m.mgr.ReorderTasks(ctx, ids); err != nil {
		m.status = fmt.Sprintf("reorder failed: %v", err)
		return m, nil
	}
	m.cursor = target
	m.reload()
	m.status = "Reordered"
	return m, nil
}

// rewriteSelected cleans up the selected task's text: asynchronously via
// the cloud collaborator when enabled, locally otherwise. A cloud failure
// falls back to the local pass without touching the raw text.
func (m Model) rewriteSelected(ctx context.Context) (tea.Model, tea.Cmd) {
	t, ok := m.selected()
	if !ok {
		return m, nil
	}
	if m.rewriter != nil && m.cfg.Cloud.Enabled {
		m.status = "Rewriting via cloud..."
		id, raw := t.ID, t.RawText
		rewriter := m.rewriter
		return m, func() tea.Msg {
			text, err := rewriter.Rewrite(context.Background(), raw)
			return rewriteResultMsg{taskID: id, text: text, err: err}
		}
	}
	t.CleanText = rewrite.Local(t.RawText)
	if err := m.mgr.Update(ctx, t); err != nil {
		m.status = fmt.Sprintf("rewrite failed: %v", err)
		return m, nil
	}
	m.reload()
	m.status = "Rewritten locally"
	return m, nil
}

func (m Model) applyRewriteResult(msg rewriteResultMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	for _, t := range m.tasks {
		if t.ID != msg.taskID {
			continue
		}
		if msg.err != nil {
			t.CleanText = rewrite.Local(t.RawText)
			m.status = fmt.Sprintf("cloud rewrite failed (%v), used local", msg.err)
		} else {
			t.CleanText = msg.text
			m.status = "Rewritten via cloud"
		}
		if err := m.mgr.Update(ctx, t); err != nil {
			m.status = fmt.Sprintf("rewrite save failed: %v", err)
		}
		m.reload()
		return m, nil
	}
	m.status = "Task vanished before the rewrite finished"
	return m, nil
}

func (m Model) updateInputMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel, "esc":
		return m.exitInput("Cancelled"), nil
	case m.cfg.Keys.Confirm, "enter":
		return m.confirmInput()
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) exitInput(status string) Model {
	m.mode = modeList
	m.add = nil
	m.subParent = ""
	m.input.SetValue("")
	m.input.Blur()
	m.status = status
	return m
}

func (m Model) confirmInput() (tea.Model, tea.Cmd) {
	ctx := context.Background()
	value := m.input.Value()

	switch m.mode {
	case modeAdd:
		m.add.setCurrentValue(value)
		if m.add.index < len(addFields())-1 {
			m.add.index++
			m.input.SetValue(m.add.currentValue())
			m.input.Placeholder = addFields()[m.add.index]
			m.status = fmt.Sprintf("Add mode: %s (%d of %d)", addFields()[m.add.index], m.add.index+1, len(addFields()))
			return m, nil
		}
		created, err := m.mgr.Add(ctx, m.add.raw, "", m.add.tags, strings.TrimSpace(m.add.due))
		if err != nil {
			m.status = fmt.Sprintf("add failed: %v", err)
			return m, nil
		}
		m = m.exitInput("Added task")
		m.reload()
		for i, t := range m.tasks {
			if t.ID == created.ID {
				m.cursor = clampCursor(i, len(m.tasks))
				break
			}
		}
		return m, nil

	case modeSearch:
		if err := m.mgr.SetSearch(ctx, strings.TrimSpace(value)); err != nil {
			m.status = fmt.Sprintf("search failed: %v", err)
			return m, nil
		}
		m = m.exitInput(searchStatus(value))
		m.reload()
		return m, nil

	case modeTagFilter:
		if err := m.mgr.SetTagFilter(ctx, value); err != nil {
			m.status = fmt.Sprintf("tag filter failed: %v", err)
			return m, nil
		}
		m = m.exitInput(tagFilterStatus(value))
		m.reload()
		return m, nil

	case modeSubtaskAdd:
		if err := m.mgr.AddSubtask(ctx, m.subParent, value); err != nil {
			m.status = fmt.Sprintf("subtask failed: %v", err)
			return m, nil
		}
		m = m.exitInput("Added subtask")
		m.reload()
		return m, nil

	case modeSubtaskPick:
		return m.applySubtaskPick(ctx, strings.TrimSpace(value))
	}
	return m, nil
}

// applySubtaskPick toggles the numbered subtask, or removes it when the
// number is prefixed with '-'.
func (m Model) applySubtaskPick(ctx context.Context, value string) (tea.Model, tea.Cmd) {
	remove := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")
	n, err := strconv.Atoi(value)
	if err != nil {
		m.status = "Enter a subtask number, e.g. 2 or -2"
		return m, nil
	}

	parentID := m.subParent
	var parent *task.Task
	for i := range m.tasks {
		if m.tasks[i].ID == parentID {
			parent = &m.tasks[i]
			break
		}
	}
	if parent == nil || n < 1 || n > len(parent.Subtasks) {
		m = m.exitInput("No such subtask")
		return m, nil
	}
	subID := parent.Subtasks[n-1].ID

	if remove {
		err = m.mgr.RemoveSubtask(ctx, parentID, subID)
	} else {
		err = m.mgr.ToggleSubtask(ctx, parentID, subID)
	}
	if err != nil {
		m.status = fmt.Sprintf("subtask failed: %v", err)
		return m, nil
	}
	if remove {
		m = m.exitInput("Removed subtask")
	} else {
		m = m.exitInput("Toggled subtask")
	}
	m.reload()
	return m, nil
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n", "N", "esc":
		m.status = "Delete cancelled"
		m.confirmDel = false
		m.pendingDel = nil
		return m, nil
	case "y", "Y":
		if m.pendingDel == nil {
			m.status = "Nothing to delete"
			m.confirmDel = false
			return m, nil
		}
		if err := m.mgr.Remove(context.Background(), m.pendingDel.ID); err != nil {
			m.status = fmt.Sprintf("delete failed: %v", err)
		} else {
			m.status = "Deleted task"
		}
		m.confirmDel = false
		m.pendingDel = nil
		m.reload()
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) View() string {
	var b strings.Builder

	criteria := m.mgr.Criteria()
	header := fmt.Sprintf("EchoTask — %s", criteria.Status)
	if criteria.Search != "" {
		header += fmt.Sprintf(" — search %q", criteria.Search)
	}
	if len(criteria.Tags) > 0 {
		header += " — tags " + task.FormatTags(criteria.Tags)
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString("Nothing here. Press 'a' to add a task.")
	} else {
		b.WriteString(m.renderTaskList())
	}

	b.WriteString("\n---\n")
	b.WriteString(m.renderDetailPanel())

	if m.mode != modeList {
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}

	b.WriteString("\n\n")
	b.WriteString(m.status)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(renderHelp(m.cfg.Keys)))

	return b.String()
}

func (m Model) renderTaskList() string {
	var b strings.Builder
	for i, t := range m.tasks {
		cursor := " "
		if m.cursor == i && m.mode == modeList {
			cursor = ">"
		}

		checkbox := "[ ]"
		if t.Status == task.StatusDone {
			checkbox = "[x]"
		}

		text := t.DisplayText()
		if done, total := t.SubtaskProgress(); total > 0 {
			text += fmt.Sprintf(" (%d/%d)", done, total)
		}
		if t.Due != "" {
			text += " " + dueStyle.Render("due "+t.Due)
		}
		if len(t.Tags) > 0 {
			text += " #" + strings.Join(t.Tags, " #")
		}

		line := fmt.Sprintf("%s %s %s", cursor, checkbox, text)
		switch {
		case t.Status == task.StatusDone:
			line = doneStyle.Render(line)
		case m.cursor == i && m.mode == modeList:
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetailPanel() string {
	t, ok := m.selected()
	if !ok {
		return "No task selected"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Raw   : %s\n", t.RawText))
	if t.CleanText != "" {
		b.WriteString(fmt.Sprintf("Clean : %s\n", t.CleanText))
	}
	if t.Due != "" {
		b.WriteString(fmt.Sprintf("Due   : %s\n", t.Due))
	}
	if len(t.Tags) > 0 {
		b.WriteString(fmt.Sprintf("Tags  : %s\n", task.FormatTags(t.Tags)))
	}
	for i, sub := range t.Subtasks {
		mark := "[ ]"
		if sub.Done {
			mark = "[x]"
		}
		b.WriteString(fmt.Sprintf("  %d. %s %s\n", i+1, mark, sub.Text))
	}
	return b.String()
}

func renderHelp(k config.Keymap) string {
	return fmt.Sprintf("%s/%s move • %s add • %s toggle • %s complete • %s delete • %s search • %s tags • %s filter • %s/%s reorder • %s subtask • %s rewrite • %s quit",
		k.Up, k.Down, k.Add, strings.TrimSpace(humanKey(k.Toggle)), k.Complete, k.Delete,
		k.Search, k.TagFilter, k.CycleFilter, k.MoveUp, k.MoveDown, k.Subtask, k.Rewrite, k.Quit)
}

func humanKey(key string) string {
	if key == " " {
		return "space"
	}
	return key
}

func nextFilter(f task.Filter) task.Filter {
	switch f {
	case task.FilterAll:
		return task.FilterActive
	case task.FilterActive:
		return task.FilterDone
	default:
		return task.FilterAll
	}
}

func searchStatus(value string) string {
	if strings.TrimSpace(value) == "" {
		return "Search cleared"
	}
	return fmt.Sprintf("Search: %q", strings.TrimSpace(value))
}

func tagFilterStatus(value string) string {
	if len(task.ParseTags(value)) == 0 {
		return "Tag filter cleared"
	}
	return "Tag filter: " + task.FormatTags(task.ParseTags(value))
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
