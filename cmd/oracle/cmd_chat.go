package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

var (
	askSources     []string
	askType        string
	askTemperature float64
	askModel       string
	askSession     string
	askShare       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question across the selected sources",
	Long: `Ask a question in the active chat session.

By default every active source in the current context is searched. Restrict
the search with --source (repeatable).`,
	Args: cobra.MinimumNArgs(1),
	RunE: signedIn(runAsk),
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions, newest first",
	RunE:  signedIn(runSessionsList),
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new chat session",
	RunE:  signedIn(runSessionsNew),
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a chat session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  signedIn(runSessionsRename),
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a chat session",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSessionsDelete),
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a session's messages",
	Args:  cobra.MaximumNArgs(1),
	RunE:  signedIn(runSessionsShow),
}

func init() {
	askCmd.Flags().StringSliceVar(&askSources, "source", nil, "Restrict the search to these source ids")
	askCmd.Flags().StringVar(&askType, "type", "", "Response type: brief, concise or expansive")
	askCmd.Flags().Float64Var(&askTemperature, "temperature", 0, "Sampling temperature in [0, 1]")
	askCmd.Flags().StringVar(&askModel, "model", "", "Model to answer with")
	askCmd.Flags().StringVar(&askSession, "session", "", "Ask in this session instead of the newest")
	askCmd.Flags().BoolVar(&askShare, "share", false, "Post the answer to the configured Slack channel")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsNewCmd, sessionsRenameCmd, sessionsDeleteCmd, sessionsShowCmd)
	rootCmd.AddCommand(askCmd, sessionsCmd)
}

// applyAskOptions applies the per-question flags to the workspace.
func applyAskOptions(ctx context.Context, a *app, cmd *cobra.Command) error {
	settings := a.ws.Options.Settings()
	if askType != "" {
		settings.ResponseType = backend.ResponseType(askType)
	}
	if cmd.Flags().Changed("temperature") {
		settings.Temperature = askTemperature
	}
	if err := a.ws.Options.SetSettings(settings); err != nil {
		return err
	}
	if askModel != "" {
		if err := a.ws.Options.SetModel(askModel); err != nil {
			return err
		}
	}
	if askSession != "" {
		if err := a.ws.Sessions.Select(ctx, backend.ID(askSession)); err != nil {
			return err
		}
	}
	if len(askSources) > 0 {
		ids := make([]backend.ID, 0, len(askSources))
		for _, s := range askSources {
			ids = append(ids, backend.ID(strings.TrimSpace(s)))
		}
		if err := a.ws.Sources.Select(ids); err != nil {
			return err
		}
	}
	return nil
}

func runAsk(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := applyAskOptions(ctx, a, cmd); err != nil {
		return err
	}
	question := strings.Join(args, " ")

	reply, err := a.ws.Chat.Submit(ctx, question)
	if reply != nil {
		newRenderer(ctx, a.prefs).message(cmd.OutOrStdout(), *reply)
	}
	if err != nil {
		return err
	}

	if askShare {
		poster, err := a.poster()
		if err != nil {
			return err
		}
		ts, err := poster.PostAnswer(ctx, *reply)
		if err != nil {
			return fmt.Errorf("share answer: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "shared to slack (ts %s)\n", ts)
	}
	return nil
}

func printSessions(w io.Writer, a *app) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTITLE\tCREATED")
	active := a.ws.Sessions.Active()
	for _, s := range a.ws.Sessions.Sessions() {
		mark := ""
		if s.ID == active {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", mark, s.ID, s.Title, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func runSessionsList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	printSessions(cmd.OutOrStdout(), a)
	return nil
}

func runSessionsNew(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	s, err := a.ws.Sessions.Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", s.ID)
	return nil
}

func runSessionsRename(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	if err := a.ws.Sessions.Rename(ctx, id, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed session %s\n", id)
	return nil
}

func runSessionsDelete(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	if err := a.ws.Sessions.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s; active is now %s\n", id, a.ws.Sessions.Active())
	return nil
}

func runSessionsShow(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := a.ws.Sessions.Select(ctx, backend.ID(args[0])); err != nil {
			return err
		}
	}
	msgs := a.ws.Chat.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No messages yet.")
		return nil
	}
	r := newRenderer(ctx, a.prefs)
	for _, m := range msgs {
		r.message(cmd.OutOrStdout(), m)
	}
	return nil
}
