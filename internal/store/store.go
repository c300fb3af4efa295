package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// KV is durable client storage. Only the bearer token and the theme flag
// are ever written to it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open picks a backend from the DSN: postgres:// or postgresql:// selects
// Postgres, anything else is a SQLite file path ("~/" is expanded).
func Open(ctx context.Context, dsn string) (KV, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgres(ctx, dsn)
	}
	path, err := expandHome(dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLite(ctx, path)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

const (
	keyToken     = "auth_token"
	keyDarkTheme = "dark_theme"
)

// Preferences is the typed view over KV.
type Preferences struct {
	kv KV
}

func NewPreferences(kv KV) *Preferences {
	return &Preferences{kv: kv}
}

// Token returns the persisted bearer token, or "" when none is stored.
func (p *Preferences) Token(ctx context.Context) (string, error) {
	v, _, err := p.kv.Get(ctx, keyToken)
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return v, nil
}

func (p *Preferences) SaveToken(ctx context.Context, token string) error {
	if err := p.kv.Set(ctx, keyToken, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (p *Preferences) ClearToken(ctx context.Context) error {
	if err := p.kv.Delete(ctx, keyToken); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (p *Preferences) DarkTheme(ctx context.Context) (bool, error) {
	v, ok, err := p.kv.Get(ctx, keyDarkTheme)
	if err != nil {
		return false, fmt.Errorf("load theme: %w", err)
	}
	if !ok {
		return false, nil
	}
	dark, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return dark, nil
}

func (p *Preferences) SetDarkTheme(ctx context.Context, dark bool) error {
	if err := p.kv.Set(ctx, keyDarkTheme, strconv.FormatBool(dark)); err != nil {
		return fmt.Errorf("save theme: %w", err)
	}
	return nil
}
