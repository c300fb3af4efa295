package workspace

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/store"
)

const minPasswordLength = 6

// Auth owns the bearer token and the signed-in user's profile.
type Auth struct {
	client *backend.Client
	prefs  *store.Preferences
	logger *slog.Logger

	mu    sync.Mutex
	token string
	user  *backend.User

	// outMu serializes sign-out cascades so a caller that signs out returns
	// only after teardown has finished, whoever ran it.
	outMu sync.Mutex

	onSignedIn  func(ctx context.Context, user backend.User) error
	onSignedOut func(user *backend.User, forced bool)
}

func newAuth(client *backend.Client, prefs *store.Preferences, logger *slog.Logger) *Auth {
	a := &Auth{client: client, prefs: prefs, logger: logger}
	client.OnUnauthorized(a.forceSignOut)
	return a
}

func (a *Auth) Authenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token != ""
}

func (a *Auth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// User returns a copy of the cached profile, or nil.
func (a *Auth) User() *backend.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

// SignIn adopts token and user, persists the token and bootstraps the
// workspace. A bootstrap failure is returned but does not undo the sign-in.
func (a *Auth) SignIn(ctx context.Context, token string, user backend.User) error {
	if token == "" {
		return invalid("token", "required")
	}
	a.mu.Lock()
	a.token = token
	a.user = &user
	a.client.SetToken(token)
	a.mu.Unlock()

	if a.prefs != nil {
		if err := a.prefs.SaveToken(ctx, token); err != nil {
			a.logger.Warn("failed to persist token", "error", err)
		}
	}
	a.logger.Info("signed in", "username", user.Username)

	if a.onSignedIn != nil {
		return a.onSignedIn(ctx, user)
	}
	return nil
}

// SignOut clears credentials and tears the workspace down. Safe to call
// when already signed out.
func (a *Auth) SignOut(ctx context.Context) {
	a.signOut(ctx, "", false)
}

// signOut clears the session. A non-empty expect limits it to that token so
// a rejection of a token that has since been replaced is ignored.
func (a *Auth) signOut(ctx context.Context, expect string, forced bool) {
	a.outMu.Lock()
	defer a.outMu.Unlock()

	a.mu.Lock()
	if expect != "" && a.token != expect {
		a.mu.Unlock()
		return
	}
	wasSignedIn := a.token != ""
	user := a.user
	a.token = ""
	a.user = nil
	a.client.SetToken("")
	a.mu.Unlock()

	if a.prefs != nil {
		if err := a.prefs.ClearToken(ctx); err != nil {
			a.logger.Warn("failed to clear persisted token", "error", err)
		}
	}
	if !wasSignedIn {
		return
	}
	if forced {
		a.logger.Warn("token rejected, signing out")
	} else {
		a.logger.Info("signed out")
	}
	if a.onSignedOut != nil {
		a.onSignedOut(user, forced)
	}
}

// forceSignOut runs when any request carrying token is rejected. It may be
// called from the poller's own goroutine, whose teardown waits for that
// goroutine to exit, so the sign-out runs on a fresh goroutine.
func (a *Auth) forceSignOut(token string) {
	if token == "" {
		return
	}
	go a.signOut(context.Background(), token, true)
}

// RefreshProfile re-reads the profile. A rejected token signs the user out
// before the AuthError is returned; transport failures leave the session
// intact.
func (a *Auth) RefreshProfile(ctx context.Context) (*backend.User, error) {
	token := a.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := a.client.Me(ctx)
	if err != nil {
		if backend.IsAuth(err) {
			a.signOut(ctx, token, true)
			return nil, err
		}
		var te *backend.TransportError
		if errors.As(err, &te) {
			a.logger.Warn("profile refresh failed", "error", err)
		}
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token != token {
		return nil, ErrNotAuthenticated
	}
	a.user = user
	u := *user
	return &u, nil
}

// Login exchanges credentials for a token, loads the profile and signs in.
// An existing session is signed out first.
func (a *Auth) Login(ctx context.Context, username, password string) (*backend.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username", "required")
	}
	if password == "" {
		return nil, invalid("password", "required")
	}
	if a.Authenticated() {
		a.SignOut(ctx)
	}

	token, err := a.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	a.client.SetToken(token)
	user, err := a.client.Me(ctx)
	if err != nil {
		a.client.SetToken("")
		return nil, err
	}

	if err := a.SignIn(ctx, token, *user); err != nil {
		return user, err
	}
	return user, nil
}

func (a *Auth) Register(ctx context.Context, reg backend.Registration) (*backend.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Password != "" && len(reg.Password) < minPasswordLength {
		return nil, invalid("password", "must be at least 6 characters")
	}
	return a.client.Register(ctx, reg)
}

// Restore adopts a persisted token. It reports false when none is stored.
func (a *Auth) Restore(ctx context.Context) (bool, error) {
	if a.prefs == nil {
		return false, nil
	}
	token, err := a.prefs.Token(ctx)
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}

	a.mu.Lock()
	a.token = token
	a.client.SetToken(token)
	a.mu.Unlock()

	user, err := a.RefreshProfile(ctx)
	if err != nil {
		return false, err
	}
	a.logger.Info("session restored", "username", user.Username)
	if a.onSignedIn != nil {
		return true, a.onSignedIn(ctx, *user)
	}
	return true, nil
}

// UpdateProfile validates the change the way the profile form does and
// replaces the cached profile on success. confirm must repeat NewPassword.
func (a *Auth) UpdateProfile(ctx context.Context, upd backend.ProfileUpdate, confirm string) (*backend.User, error) {
	upd.Email = strings.TrimSpace(upd.Email)
	if upd.Email == "" {
		return nil, invalid("email", "required")
	}
	if upd.NewPassword != "" {
		if len(upd.NewPassword) < minPasswordLength {
			return nil, invalid("new_password", "must be at least 6 characters")
		}
		if upd.NewPassword != confirm {
			return nil, invalid("new_password", "does not match confirmation")
		}
		if upd.CurrentPassword == "" {
			return nil, invalid("current_password", "required to set a new password")
		}
	}
	token := a.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := a.client.UpdateProfile(ctx, upd)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.token == token {
		a.user = user
	}
	a.mu.Unlock()
	u := *user
	return &u, nil
}
