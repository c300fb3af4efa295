package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

var (
	loginUsername string
	loginPassword string

	registerEmail    string
	registerFullName string

	profileEmail           string
	profileCurrentPassword string
	profileNewPassword     string
	profileConfirmPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	RunE:  signedOut(runLogin),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE:  signedOut(runRegister),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE:  signedOut(runLogout),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and context",
	RunE:  signedIn(runWhoami),
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change email or password",
	RunE:  signedIn(runProfileUpdate),
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username (prompted if empty)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (prompted if empty)")

	registerCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	registerCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password, at least 6 characters")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "Email address")
	registerCmd.Flags().StringVar(&registerFullName, "full-name", "", "Full name")

	profileUpdateCmd.Flags().StringVar(&profileEmail, "email", "", "New email (defaults to the current one)")
	profileUpdateCmd.Flags().StringVar(&profileCurrentPassword, "current-password", "", "Current password, required to set a new one")
	profileUpdateCmd.Flags().StringVar(&profileNewPassword, "new-password", "", "New password")
	profileUpdateCmd.Flags().StringVar(&profileConfirmPassword, "confirm-password", "", "Repeat the new password")

	profileCmd.AddCommand(profileUpdateCmd)
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, profileCmd)
}

var stdin = bufio.NewReader(os.Stdin)

func prompt(label string) string {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}

func runLogin(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if loginUsername == "" {
		loginUsername = prompt("Username")
	}
	if loginPassword == "" {
		loginPassword = prompt("Password")
	}
	user, err := a.ws.Auth.Login(ctx, loginUsername, loginPassword)
	if err != nil && user == nil {
		return err
	}
	if err != nil {
		a.logger.Warn("signed in but the workspace did not fully load", "error", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", user.Username)
	return nil
}

func runRegister(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	reg := backend.Registration{
		Username: loginUsername,
		Email:    registerEmail,
		Password: loginPassword,
		FullName: registerFullName,
	}
	if reg.Username == "" {
		reg.Username = prompt("Username")
	}
	if reg.Email == "" {
		reg.Email = prompt("Email")
	}
	if reg.Password == "" {
		reg.Password = prompt("Password")
	}
	user, err := a.ws.Auth.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run 'oracle login' to sign in.\n", user.Username)
	return nil
}

func runLogout(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	a.ws.Auth.SignOut(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	user := a.ws.Auth.User()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s <%s>\n", user.Username, user.Email)
	if user.FullName != "" {
		fmt.Fprintf(out, "name:    %s\n", user.FullName)
	}
	fmt.Fprintf(out, "context: %s\n", a.ws.Scope())
	fmt.Fprintf(out, "teams:   %d\n", len(a.ws.Teams.Teams()))
	fmt.Fprintf(out, "service: %s\n", a.client.APIURL())
	return nil
}

func runProfileUpdate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	upd := backend.ProfileUpdate{
		Email:           profileEmail,
		CurrentPassword: profileCurrentPassword,
		NewPassword:     profileNewPassword,
	}
	if upd.Email == "" {
		upd.Email = a.ws.Auth.User().Email
	}
	user, err := a.ws.Auth.UpdateProfile(ctx, upd, profileConfirmPassword)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile updated for %s <%s>\n", user.Username, user.Email)
	return nil
}
