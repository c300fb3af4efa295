package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

var (
	teamName        string
	teamDisplayName string
	teamDescription string
	teamRole        string
	teamYes         bool
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "Manage teams and their members",
}

var teamsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your teams",
	RunE:  signedIn(runTeamsList),
}

var teamsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a team",
	RunE:  signedIn(runTeamsCreate),
}

var teamsShowCmd = &cobra.Command{
	Use:   "show <team>",
	Short: "Show a team and its members",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runTeamsShow),
}

var teamsUpdateCmd = &cobra.Command{
	Use:   "update <team>",
	Short: "Change a team's display name or description",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runTeamsUpdate),
}

var teamsDeleteCmd = &cobra.Command{
	Use:   "delete <team>",
	Short: "Delete a team",
	Args:  cobra.ExactArgs(1),
	RunE:  signedIn(runTeamsDelete),
}

var teamsInviteCmd = &cobra.Command{
	Use:   "invite <team> <email>",
	Short: "Invite someone by email",
	Args:  cobra.ExactArgs(2),
	RunE:  signedIn(runTeamsInvite),
}

var teamsRemoveCmd = &cobra.Command{
	Use:   "remove <team> <member>",
	Short: "Remove a member",
	Args:  cobra.ExactArgs(2),
	RunE:  signedIn(runTeamsRemove),
}

var teamsRoleCmd = &cobra.Command{
	Use:   "role <team> <member> <owner|admin|member>",
	Short: "Change a member's role",
	Args:  cobra.ExactArgs(3),
	RunE:  signedIn(runTeamsRole),
}

func init() {
	teamsCreateCmd.Flags().StringVar(&teamName, "name", "", "Unique team name")
	teamsCreateCmd.Flags().StringVar(&teamDisplayName, "display-name", "", "Display name")
	teamsCreateCmd.Flags().StringVar(&teamDescription, "description", "", "Description")

	teamsUpdateCmd.Flags().StringVar(&teamDisplayName, "display-name", "", "New display name")
	teamsUpdateCmd.Flags().StringVar(&teamDescription, "description", "", "New description")

	teamsInviteCmd.Flags().StringVar(&teamRole, "role", string(backend.RoleMember), "owner, admin or member")
	teamsDeleteCmd.Flags().BoolVarP(&teamYes, "yes", "y", false, "Confirm the deletion")

	teamsCmd.AddCommand(teamsListCmd, teamsCreateCmd, teamsShowCmd, teamsUpdateCmd, teamsDeleteCmd,
		teamsInviteCmd, teamsRemoveCmd, teamsRoleCmd)
	rootCmd.AddCommand(teamsCmd)
}

func printTeams(w io.Writer, a *app) {
	current := a.ws.Scope()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tDISPLAY NAME\tMEMBERS")
	for _, t := range a.ws.Teams.Teams() {
		mark := ""
		if current == workspace.Team(t.ID) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", mark, t.ID, t.Name, t.DisplayName, t.MemberCount)
	}
	tw.Flush()
}

func runTeamsList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	printTeams(cmd.OutOrStdout(), a)
	return nil
}

func runTeamsCreate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	team, err := a.ws.Teams.Create(ctx, backend.TeamInput{
		Name:        teamName,
		DisplayName: teamDisplayName,
		Description: teamDescription,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created team %s (%s). Use --team %s to work in it.\n", team.ID, team.DisplayName, team.ID)
	return nil
}

func runTeamsShow(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	detail, err := a.ws.Teams.Detail(ctx, backend.ID(args[0]))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", detail.DisplayName, detail.Name)
	if detail.Description != "" {
		fmt.Fprintln(out, detail.Description)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE")
	for _, m := range detail.Members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Username, m.Email, m.Role)
	}
	tw.Flush()

	if user := a.ws.Auth.User(); user != nil && workspace.CanManage(detail, user.ID) {
		fmt.Fprintln(out, "\nYou can manage members of this team.")
	}
	return nil
}

func runTeamsUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	team, err := a.ws.Teams.Update(ctx, backend.ID(args[0]), backend.TeamInput{
		DisplayName: teamDisplayName,
		Description: teamDescription,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated team %s\n", team.ID)
	return nil
}

func runTeamsDelete(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	id := backend.ID(args[0])
	if !teamYes {
		answer := prompt(fmt.Sprintf("Delete team %s and its sources? [y/N]", id))
		if answer != "y" && answer != "Y" && answer != "yes" {
			return workspace.ErrNotConfirmed
		}
	}
	if err := a.ws.DeleteTeam(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted team %s\n", id)
	return nil
}

func runTeamsInvite(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.ws.Teams.Invite(ctx, backend.ID(args[0]), args[1], backend.Role(teamRole)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Invited %s as %s\n", args[1], teamRole)
	return nil
}

func runTeamsRemove(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.ws.Teams.RemoveMember(ctx, backend.ID(args[0]), backend.ID(args[1])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed member %s\n", args[1])
	return nil
}

func runTeamsRole(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	role := backend.Role(args[2])
	if err := a.ws.Teams.UpdateMemberRole(ctx, backend.ID(args[0]), backend.ID(args[1]), role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Member %s is now %s\n", args[1], role)
	return nil
}
