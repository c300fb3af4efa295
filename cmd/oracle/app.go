package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/hermes"
	"github.com/MikeSquared-Agency/oracle/internal/slack"
	"github.com/MikeSquared-Agency/oracle/internal/store"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

const natsConnectTimeout = 5 * time.Second

// app is everything a command needs: the state store, the service client
// and the workspace built over them.
type app struct {
	kv     store.KV
	prefs  *store.Preferences
	client *backend.Client
	ws     *workspace.Workspace
	events *hermes.Client
	logger *slog.Logger
}

func openApp(ctx context.Context, autoPoll bool) (*app, error) {
	logger := slog.Default()

	kv, err := store.Open(ctx, cfg.StateDSN)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	prefs := store.NewPreferences(kv)
	client := backend.New(cfg.APIURL, logger, backend.WithTimeout(cfg.HTTPTimeout))

	a := &app{kv: kv, prefs: prefs, client: client, logger: logger}

	// nil interface, not a nil *hermes.Client, when events are off
	var pub workspace.Publisher
	if cfg.NatsURL != "" {
		nctx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
		events, err := hermes.NewClient(nctx, cfg.NatsURL, cfg.NatsToken, logger)
		cancel()
		if err != nil {
			logger.Warn("NATS unavailable, workspace events disabled", "url", cfg.NatsURL, "error", err)
		} else {
			a.events = events
			pub = events
		}
	}

	a.ws = workspace.New(client, prefs, workspace.Config{
		PollInterval:     cfg.PollInterval,
		SyncRecheckDelay: cfg.SyncRecheckDelay,
		Model:            cfg.Model,
		Settings: workspace.Settings{
			ResponseType: backend.ResponseType(cfg.ResponseType),
			Temperature:  cfg.Temperature,
		},
		AutoPoll: autoPoll,
	}, pub, logger)
	return a, nil
}

func (a *app) Close() {
	a.ws.Close()
	if a.events != nil {
		a.events.Close()
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close state store", "error", err)
	}
}

// restore signs in with the saved token and applies --team. A bootstrap
// load that fails is logged; the session still stands.
func (a *app) restore(ctx context.Context) error {
	ok, err := a.ws.Auth.Restore(ctx)
	if err != nil {
		if !ok {
			return err
		}
		a.logger.Warn("workspace partially loaded", "error", err)
	}
	if !ok {
		return workspace.ErrNotAuthenticated
	}
	if teamFlag != "" {
		if err := a.ws.SetContext(ctx, workspace.ParseScope(teamFlag)); err != nil {
			return fmt.Errorf("switch context: %w", err)
		}
	}
	return nil
}

func (a *app) poster() (*slack.Poster, error) {
	if cfg.SlackBotToken == "" || cfg.SlackChannel == "" {
		return nil, errors.New("sharing needs SLACK_BOT_TOKEN and SLACK_CHANNEL")
	}
	return slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, a.logger), nil
}

type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// signedIn wraps a command that needs a restored session.
func signedIn(fn runFunc) func(*cobra.Command, []string) error {
	return withApp(false, true, fn)
}

// signedOut wraps a command that works without a session.
func signedOut(fn runFunc) func(*cobra.Command, []string) error {
	return withApp(false, false, fn)
}

func withApp(autoPoll, needSession bool, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, autoPoll)
		if err != nil {
			return err
		}
		defer a.Close()
		if needSession {
			if err := a.restore(ctx); err != nil {
				return err
			}
		}
		return fn(ctx, a, cmd, args)
	}
}
