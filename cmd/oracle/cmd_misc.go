package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the service can answer with",
	RunE:  signedIn(runModels),
}

var themeCmd = &cobra.Command{
	Use:       "theme [dark|light]",
	Short:     "Show or set the answer rendering theme",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"dark", "light"},
	RunE:      signedOut(runTheme),
}

func init() {
	rootCmd.AddCommand(modelsCmd, themeCmd)
}

func printModels(w io.Writer, a *app) {
	selected := a.ws.Options.Model()
	for _, m := range a.ws.Options.Models() {
		mark := " "
		if m.Name == selected {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, m.Name)
	}
}

func runModels(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if _, err := a.ws.Options.LoadModels(ctx); err != nil {
		return err
	}
	printModels(cmd.OutOrStdout(), a)
	return nil
}

func runTheme(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		dark, err := a.prefs.DarkTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, themeName(dark))
		return nil
	}
	var dark bool
	switch args[0] {
	case "dark":
		dark = true
	case "light":
	default:
		return fmt.Errorf("unknown theme %q, want dark or light", args[0])
	}
	if err := a.prefs.SetDarkTheme(ctx, dark); err != nil {
		return err
	}
	fmt.Fprintf(out, "Theme set to %s\n", themeName(dark))
	return nil
}

func themeName(dark bool) string {
	if dark {
		return "dark"
	}
	return "light"
}
