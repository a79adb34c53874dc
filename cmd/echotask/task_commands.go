package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"echotask/internal/rewrite"
	"echotask/internal/task"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var tags string
	var due string
	var clean string
	var localClean bool
	var cloudClean bool

	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a new task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				raw := strings.Join(args, " ")
				cleanText := clean
				if cleanText == "" && cloudClean {
					cleanText = cloudRewriteOrLocal(cmd, s, raw)
				}
				if cleanText == "" && localClean {
					cleanText = rewrite.Local(raw)
				}

				created, err := s.mgr.Add(cmd.Context(), raw, cleanText, tags, due)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s: %s\n", shortID(created.ID), created.DisplayText())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&clean, "clean", "", "Explicit cleaned-up text")
	cmd.Flags().BoolVar(&localClean, "rewrite", false, "Derive cleaned-up text locally")
	cmd.Flags().BoolVar(&cloudClean, "cloud", false, "Derive cleaned-up text via the cloud model")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var search string
	var tags string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				if err := applyCriteria(cmd.Context(), s, status, search, tags); err != nil {
					return err
				}
				tasks := s.mgr.Tasks()

				if asJSON {
					data, err := json.MarshalIndent(tasks, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}

				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}

				if stdoutIsTerminal() {
					fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(tasks))
					return nil
				}
				for i, t := range tasks {
					fmt.Fprintln(cmd.OutOrStdout(), plainTaskLine(i+1, t))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Status filter: all, active, done")
	cmd.Flags().StringVar(&search, "search", "", "Case-insensitive text search")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags; every tag must match")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newToggleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task>",
		Short: "Toggle a task between active and done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				id, err := resolveTask(s, args[0])
				if err != nil {
					return err
				}
				if err := s.mgr.Toggle(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Toggled %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newDoneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "done <task>",
		Short: "Mark a task and all of its subtasks done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				id, err := resolveTask(s, args[0])
				if err != nil {
					return err
				}
				if err := s.mgr.CompleteTask(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <task>",
		Aliases: []string{"remove"},
		Short:   "Delete a task permanently",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				id, err := resolveTask(s, args[0])
				if err != nil {
					return err
				}
				if err := s.mgr.Remove(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", shortID(id))
				return nil
			})
		},
	}
}

// applyCriteria pushes list flags into the manager's criteria.
func applyCriteria(ctx context.Context, s *session, status, search, tags string) error {
	if status != "" {
		filter, ok := task.ParseFilter(status)
		if !ok {
			return fmt.Errorf("unknown status %q (use all, active, or done)", status)
		}
		if err := s.mgr.SetStatusFilter(ctx, filter); err != nil {
			return err
		}
	}
	if search != "" {
		if err := s.mgr.SetSearch(ctx, search); err != nil {
			return err
		}
	}
	if tags != "" {
		if err := s.mgr.SetTagFilter(ctx, tags); err != nil {
			return err
		}
	}
	return nil
}

// resolveTask maps a command argument to a task id: a number selects the
// nth visible task, anything else must match a full id or a unique prefix.
func resolveTask(s *session, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("task id or number is required")
	}
	tasks := s.mgr.Tasks()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(tasks) {
			return "", fmt.Errorf("task number %d out of range (1-%d)", n, len(tasks))
		}
		return tasks[n-1].ID, nil
	}

	var matches []string
	for _, t := range tasks {
		if t.ID == arg {
			return t.ID, nil
		}
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no task matches %q", arg)
	default:
		return "", fmt.Errorf("%q is ambiguous (%d tasks match)", arg, len(matches))
	}
}

func renderTaskTable(tasks []task.Task) string {
	headers := []string{"#", "", "Task", "Tags", "Due", "Subtasks", "ID"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	rows := make([][]string, 0, len(tasks))
	for i, t := range tasks {
		mark := " "
		if t.Status == task.StatusDone {
			mark = "x"
		}
		progress := ""
		if done, total := t.SubtaskProgress(); total > 0 {
			progress = fmt.Sprintf("%d/%d", done, total)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			mark,
			t.DisplayText(),
			task.FormatTags(t.Tags),
			t.Due,
			progress,
			shortID(t.ID),
		})
	}
	return renderTable(headers, rows, aligns)
}

func plainTaskLine(n int, t task.Task) string {
	mark := "[ ]"
	if t.Status == task.StatusDone {
		mark = "[x]"
	}
	fields := []string{strconv.Itoa(n), mark, t.DisplayText()}
	if len(t.Tags) > 0 {
		fields = append(fields, "#"+strings.Join(t.Tags, " #"))
	}
	if t.Due != "" {
		fields = append(fields, "due:"+t.Due)
	}
	fields = append(fields, t.ID)
	return strings.Join(fields, "\t")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
