package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

var (
	sourceType        string
	sourceName        string
	sourceInactive    bool
	sourceActive      bool
	sourceCredentials map[string]string
	sourceYes         bool
	sourceWait        bool
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage data sources in the current context",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources with their latest sync",
	RunE:  signedIn(runSourcesList),
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Connect a Confluence, Jira or Bitbucket source",
	Example: `  oracle sources add --type confluence --name "Eng Wiki" \
    --cred base_url=https://acme.atlassian.net/wiki --cred username=me@acme.com --cred api_token=...`,
	RunE: signedIn(runSourcesAdd),
}

var sourcesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename, activate or deactivate a source",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSourcesUpdate),
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a source",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSourcesDelete),
}

var sourcesSyncCmd = &cobra.Command{
	Use:   "sync <id>",
	Short: "Start synchronizing a source",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSourcesSync),
}

var sourcesTestCmd = &cobra.Command{
	Use:   "test <id>",
	Short: "Check that a source's credentials work",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSourcesTest),
}

var sourcesHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recent sync runs",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runSourcesHistory),
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceType, "type", "", "confluence, jira or bitbucket")
	sourcesAddCmd.Flags().StringVar(&sourceName, "name", "", "Display name")
	sourcesAddCmd.Flags().BoolVar(&sourceInactive, "inactive", false, "Create the source inactive")
	sourcesAddCmd.Flags().StringToStringVar(&sourceCredentials, "cred", nil, "Connector credential key=value (repeatable)")

	sourcesUpdateCmd.Flags().StringVar(&sourceName, "name", "", "New display name")
	sourcesUpdateCmd.Flags().BoolVar(&sourceActive, "active", true, "Whether the source is active")
	sourcesUpdateCmd.Flags().StringToStringVar(&sourceCredentials, "cred", nil, "Replace credentials key=value (repeatable)")

	sourcesDeleteCmd.Flags().BoolVarP(&sourceYes, "yes", "y", false, "Confirm the deletion")
	sourcesSyncCmd.Flags().BoolVar(&sourceWait, "wait", true, "Wait for the status re-check before exiting")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesUpdateCmd, sourcesDeleteCmd, sourcesSyncCmd, sourcesTestCmd, sourcesHistoryCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func printSources(w io.Writer, a *app) {
	snapshot := a.ws.Poller.Snapshot()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "\tID\tNAME\tTYPE\tACTIVE\tDOCS\tLAST SYNC\n")
	for _, src := range a.ws.Sources.Sources() {
		mark := ""
		if a.ws.Sources.IsSelected(src.ID) {
			mark = "*"
		}
		docs := "-"
		if src.DocumentCount != nil {
			docs = fmt.Sprint(*src.DocumentCount)
		}
		last := "never"
		if e, ok := snapshot[src.ID]; ok {
			last = fmt.Sprintf("%s %s", e.SyncStatus, e.StartedAt.Local().Format("2006-01-02 15:04"))
		} else if src.SyncStatus != nil {
			last = string(*src.SyncStatus)
			if src.LastSync != nil {
				last += " " + src.LastSync.Local().Format("2006-01-02 15:04")
			}
		}
		if a.ws.Poller.IsSyncing(src.ID) {
			last = "syncing…"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n", mark, src.ID, src.DisplayName, src.SourceType, src.IsActive, docs, last)
	}
	tw.Flush()
}

func runSourcesList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	for _, src := range a.ws.Sources.Sources() {
		if err := a.ws.Poller.RefreshSource(ctx, src.ID); err != nil {
			a.logger.Debug("sync status unavailable", "source_id", src.ID, "error", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "context %s\n", a.ws.Scope())
	printSources(cmd.OutOrStdout(), a)
	return nil
}

func runSourcesAdd(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	in := backend.SourceInput{
		SourceType:  backend.SourceType(sourceType),
		DisplayName: sourceName,
		IsActive:    !sourceInactive,
		Credentials: sourceCredentials,
	}
	ds, err := a.ws.Sources.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s source %s (%s) in %s\n", ds.SourceType, ds.ID, ds.DisplayName, a.ws.Scope())
	return nil
}

func runSourcesUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	current, ok := a.ws.Sources.Get(id)
	if !ok {
		return fmt.Errorf("unknown source %s in %s", id, a.ws.Scope())
	}
	in := backend.SourceInput{
		SourceType:  current.SourceType,
		DisplayName: current.DisplayName,
		IsActive:    current.IsActive,
		Credentials: sourceCredentials,
	}
	if sourceName != "" {
		in.DisplayName = sourceName
	}
	if cmd.Flags().Changed("active") {
		in.IsActive = sourceActive
	}
	ds, err := a.ws.Sources.Update(ctx, id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s (%s, active=%t)\n", ds.ID, ds.DisplayName, ds.IsActive)
	return nil
}

func runSourcesDelete(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	if !sourceYes {
		answer := prompt(fmt.Sprintf("Delete source %s? [y/N]", id))
		sourceYes = answer == "y" || answer == "Y" || answer == "yes"
	}
	if err := a.ws.Sources.Delete(ctx, id, sourceYes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted source %s\n", id)
	return nil
}

func runSourcesSync(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	msg, err := a.ws.TriggerSync(ctx, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, msg)
	if !sourceWait {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, cfg.SyncRecheckDelay+30*time.Second)
	defer cancel()
	if err := a.ws.Poller.Wait(wctx); err != nil {
		return fmt.Errorf("wait for sync status: %w", err)
	}
	if e, ok := a.ws.Poller.Status(id); ok {
		fmt.Fprintf(out, "status: %s (%d documents processed)\n", e.SyncStatus, e.DocumentsProcessed)
	}
	return nil
}

func runSourcesTest(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	ok, err := a.ws.Sources.TestConnection(ctx, backend.ID(args[0]))
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Connection OK")
		return nil
	}
	return fmt.Errorf("connection to source %s failed", args[0])
}

func runSourcesHistory(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	history, err := a.ws.Sources.SyncHistory(ctx, backend.ID(args[0]))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tDOCS\t+/~/-\tERROR")
	for _, e := range history {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d/%d\t%s\n",
			e.ID, e.SyncStatus, e.StartedAt.Local().Format("2006-01-02 15:04"),
			e.DocumentsProcessed, e.DocumentsAdded, e.DocumentsUpdated, e.DocumentsDeleted, e.ErrorMessage)
	}
	return tw.Flush()
}
