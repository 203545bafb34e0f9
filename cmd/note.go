package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	internalApp "github.com/haierkeys/onyx-note-sync/internal/app"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type noteFlags struct {
	commonFlags
	title   string
	content string
	offline bool
}

// withEngine opens the engine for one note operation; unless offline it probes first so edits reach the remote
// withEngine 为单次笔记操作打开引擎，非离线模式下先探测连通性，使修改能推送到远端
func withEngine(cmd *cobra.Command, f *noteFlags, fn func(ctx context.Context, a *internalApp.App) error) error {
	cfg, lg, err := loadRuntime(&f.commonFlags)
	if err != nil {
		return err
	}
	a, err := openEngine(cfg, lg)
	if err != nil {
		return err
	}
	defer func() {
		// 等待后台远端写入完成
		if err := a.Shutdown(context.Background()); err != nil {
			lg.Warn("engine shutdown", zap.Error(err))
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if !f.offline && !a.Session.Probe(ctx) {
		fmt.Fprintln(cmd.ErrOrStderr(), "remote unreachable, change stays local until the next sync")
	}
	var opErr error
	a.TrackOperation(func() { opErr = fn(ctx, a) })
	return opErr
}

// readContent 读取 --content，值为 "-" 时从标准输入读取
func readContent(in io.Reader, v string) (string, error) {
	if v != "-" {
		return v, nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseLocalID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id %q", s)
	}
	return id, nil
}

func printNote(w io.Writer, n *domain.Note) {
	fmt.Fprintf(w, "id:       %d\n", n.LocalID)
	fmt.Fprintf(w, "remote:   %s\n", n.RemoteID)
	fmt.Fprintf(w, "title:    %s\n", n.Title)
	fmt.Fprintf(w, "created:  %s\n", n.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "updated:  %s\n\n", n.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintln(w, n.Content)
}

func init() {
	noteEnv := new(noteFlags)

	noteCommand := &cobra.Command{
		Use:   "note",
		Short: "Manage local notes",
	}

	addCommand := &cobra.Command{
		Use:   "add -t title [-m content|-]",
		Short: "Create a note and push it when the remote is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), noteEnv.content)
			if err != nil {
				return err
			}
			return withEngine(cmd, noteEnv, func(ctx context.Context, a *internalApp.App) error {
				n, err := a.NoteService.Create(ctx, noteEnv.title, content)
				if err != nil {
					return err
				}
				if a.Session.Connected() {
					a.Session.Reconcile(ctx)
					if fresh, err := a.NoteService.Get(ctx, n.LocalID); err == nil {
						n = fresh
					}
				}
				printNote(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}

	listCommand := &cobra.Command{
		Use:   "list",
		Short: "List notes, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noteEnv.offline = true
			return withEngine(cmd, noteEnv, func(ctx context.Context, a *internalApp.App) error {
				notes, err := a.NoteService.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tREMOTE\tUPDATED\tTITLE")
				for _, n := range notes {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", n.LocalID, n.RemoteID, n.UpdatedAt.Format(time.DateTime), n.Title)
				}
				return tw.Flush()
			})
		},
	}

	showCommand := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLocalID(args[0])
			if err != nil {
				return err
			}
			noteEnv.offline = true
			return withEngine(cmd, noteEnv, func(ctx context.Context, a *internalApp.App) error {
				n, err := a.NoteService.Get(ctx, id)
				if err != nil {
					return err
				}
				printNote(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}

	editCommand := &cobra.Command{
		Use:   "edit <id> [-t title] [-m content|-]",
		Short: "Edit a note, a bound note is pushed right away",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLocalID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, noteEnv, func(ctx context.Context, a *internalApp.App) error {
				cur, err := a.NoteService.Get(ctx, id)
				if err != nil {
					return err
				}
				title, content := cur.Title, cur.Content
				if cmd.Flags().Changed("title") {
					title = noteEnv.title
				}
				if cmd.Flags().Changed("content") {
					if content, err = readContent(cmd.InOrStdin(), noteEnv.content); err != nil {
						return err
					}
				}
				n, err := a.NoteService.Update(ctx, id, title, content)
				if err != nil {
					return err
				}
				printNote(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}

	rmCommand := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a note locally and on the remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLocalID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, noteEnv, func(ctx context.Context, a *internalApp.App) error {
				if err := a.NoteService.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{addCommand, listCommand, showCommand, editCommand, rmCommand} {
		bindCommonFlags(c, &noteEnv.commonFlags)
		noteCommand.AddCommand(c)
	}
	for _, c := range []*cobra.Command{addCommand, editCommand} {
		c.Flags().StringVarP(&noteEnv.title, "title", "t", "", "note title")
		c.Flags().StringVarP(&noteEnv.content, "content", "m", "", `note content, "-" reads stdin`)
	}
	for _, c := range []*cobra.Command{addCommand, editCommand, rmCommand} {
		c.Flags().BoolVar(&noteEnv.offline, "offline", false, "skip the remote and only change the local store")
	}
	_ = addCommand.MarkFlagRequired("title")

	rootCmd.AddCommand(noteCommand)
}
