package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/config"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

var (
	cfg config.Config

	apiURLFlag   string
	teamFlag     string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Ask questions across your synced knowledge sources",
	Long: `oracle is a terminal client for the answer-generation service.

Sign in once with 'oracle login'; the token is kept in the local state store
and reused by every other command. Pass --team to work in a team context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if apiURLFlag != "" {
			cfg.APIURL = apiURLFlag
		}
		if logLevelFlag != "" {
			cfg.LogLevel = logLevelFlag
		}
		if cmd.Name() == "serve" {
			setupLogging(cfg.LogLevel, os.Stdout, true)
		} else {
			setupLogging(cfg.LogLevel, os.Stderr, false)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Service base URL (or set ORACLE_API_URL)")
	rootCmd.PersistentFlags().StringVar(&teamFlag, "team", "", "Work in a team context: team id or team:<id>")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "debug, info, warn or error (or set LOG_LEVEL)")
}

func main() {
	cfg = config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		stop()
		os.Exit(1)
	}
}

// describe turns workspace and service errors into the line shown to the
// user.
func describe(err error) string {
	var ve *backend.ValidationError
	var te *backend.TransportError
	switch {
	case errors.Is(err, workspace.ErrNotAuthenticated):
		return "not signed in, run 'oracle login'"
	case backend.IsAuth(err):
		return "session expired or credentials rejected: " + backend.Detail(err)
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &te):
		return fmt.Sprintf("cannot reach %s: %v", cfg.APIURL, te.Err)
	default:
		return backend.Detail(err)
	}
}

func setupLogging(level string, w io.Writer, structured bool) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if structured {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		// interactive commands only surface warnings unless asked
		if level == "" || level == "info" {
			opts.Level = slog.LevelWarn
		}
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
