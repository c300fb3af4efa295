package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/api"
	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/hermes"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the workspace signed in, poll sync status and expose it over HTTP",
	RunE:  withApp(true, false, runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// signedOutOnStart reports whether a restore error only means there is no
// usable session: no saved token, or a saved token the service rejected
// (already cleared by the forced sign-out).
func signedOutOnStart(err error) bool {
	return errors.Is(err, workspace.ErrNotAuthenticated) || backend.IsAuth(err)
}

func runServe(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	logger := a.logger
	logger.Info("oracle starting", "port", cfg.Port, "api_url", cfg.APIURL)

	if err := a.restore(ctx); err != nil {
		if !signedOutOnStart(err) {
			return err
		}
		logger.Warn("not signed in, status will stay empty until 'oracle login'", "reason", describe(err))
	} else if user := a.ws.Auth.User(); user != nil {
		logger.Info("workspace restored", "user", user.Username, "context", a.ws.Scope().String())
	}

	if a.events != nil {
		err := a.events.Subscribe(hermes.SubjectSourceSynced, func(subject string, data []byte) {
			ev, err := hermes.ParseSourceSynced(data)
			if err != nil {
				logger.Warn("bad source synced event", "error", err)
				return
			}
			if err := a.ws.Poller.RefreshSource(ctx, backend.ID(ev.SourceID)); err != nil {
				logger.Debug("refresh after sync event failed", "source_id", ev.SourceID, "error", err)
			}
		})
		if err != nil {
			return err
		}
		logger.Info("subscribed to connector events", "subject", hermes.SubjectSourceSynced)
	}

	srv := api.NewServer(cfg.Port, a.ws, cfg.APIToken, logger)
	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if cfg.APIToken == "" {
		logger.Warn("ORACLE_API_TOKEN not set, status API is unauthenticated")
	}
	logger.Info("oracle ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errc:
		logger.Error("HTTP server error", "error", err)
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("oracle stopped")
	return nil
}
