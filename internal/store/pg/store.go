// Package pg implements store.IdentityStore on PostgreSQL through pgxpool.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/exactauth/internal/observability/logger"
	"github.com/dropDatabas3/exactauth/internal/providers"
	"github.com/dropDatabas3/exactauth/internal/store"
)

// Config tunes the pool. Zero values keep pgxpool defaults.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

type Store struct{ pool *pgxpool.Pool }

// New opens the pool. A failing startup ping is logged, not returned, so the
// service can come up while the database is still starting.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.L().With(logger.Component("pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.String("max_conns", fmt.Sprint(pcfg.MaxConns)))
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the pool for metrics.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

const (
	qLockIdentity = `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`

	qFindIdentity = `SELECT user_id, created_at FROM identity WHERE provider = $1 AND provider_user_id = $2`

	qInsertUser = `INSERT INTO app_user (id, email, display_name) VALUES ($1, $2, $3)`

	qInsertIdentity = `
        INSERT INTO identity (provider, provider_user_id, user_id, email, display_name, profile)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at, last_login_at`

	qTouchIdentity = `
        UPDATE identity
           SET email = $3, display_name = $4, profile = $5, last_login_at = now()
         WHERE provider = $1 AND provider_user_id = $2
        RETURNING last_login_at`

	qGetByUser = `
        SELECT user_id, provider, provider_user_id, email, display_name, created_at, last_login_at
          FROM identity
         WHERE user_id = $1
         ORDER BY last_login_at DESC
         LIMIT 1`
)

func (s *Store) Resolve(ctx context.Context, profile *providers.UserProfile, provider string) (*store.Identity, error) {
	if profile == nil || profile.ProviderID == "" || provider == "" {
		return nil, store.ErrInvalid
	}
	raw, err := json.Marshal(profile.Raw)
	if err != nil {
		return nil, fmt.Errorf("pg: encode profile: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, qLockIdentity, provider, profile.ProviderID); err != nil {
		return nil, fmt.Errorf("pg: lock identity: %w", err)
	}

	id := &store.Identity{
		Provider:       provider,
		ProviderUserID: profile.ProviderID,
		Email:          profile.Email,
		DisplayName:    profile.Name,
	}

	var userID uuid.UUID
	err = tx.QueryRow(ctx, qFindIdentity, provider, profile.ProviderID).Scan(&userID, &id.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		userID = uuid.New()
		if _, err := tx.Exec(ctx, qInsertUser, userID, profile.Email, profile.Name); err != nil {
			return nil, fmt.Errorf("pg: insert user: %w", err)
		}
		if err := tx.QueryRow(ctx, qInsertIdentity, provider, profile.ProviderID, userID, profile.Email, profile.Name, raw).
			Scan(&id.CreatedAt, &id.LastLoginAt); err != nil {
			return nil, fmt.Errorf("pg: insert identity: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("pg: find identity: %w", err)
	default:
		if err := tx.QueryRow(ctx, qTouchIdentity, provider, profile.ProviderID, profile.Email, profile.Name, raw).
			Scan(&id.LastLoginAt); err != nil {
			return nil, fmt.Errorf("pg: touch identity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	id.UserID = userID.String()
	return id, nil
}

func (s *Store) Get(ctx context.Context, userID string) (*store.Identity, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, store.ErrNotFound
	}

	var (
		id  store.Identity
		got uuid.UUID
	)
	err = s.pool.QueryRow(ctx, qGetByUser, uid).Scan(
		&got, &id.Provider, &id.ProviderUserID, &id.Email, &id.DisplayName, &id.CreatedAt, &id.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id.UserID = got.String()
	return &id, nil
}

// RunMigrations applies every *_up.sql file of fsys in name order.
func (s *Store) RunMigrations(ctx context.Context, fsys fs.FS) error {
	return s.run(ctx, fsys, "_up.sql", false)
}

// RunMigrationsDown applies every *_down.sql file of fsys in reverse order.
func (s *Store) RunMigrationsDown(ctx context.Context, fsys fs.FS) error {
	return s.run(ctx, fsys, "_down.sql", true)
}

func (s *Store) run(ctx context.Context, fsys fs.FS, suffix string, reverse bool) error {
	files, err := migrationFiles(fsys, suffix)
	if err != nil {
		return err
	}
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
		logger.L().Info("migration applied", logger.Component("pg"), logger.String("file", f))
	}
	return nil
}

func migrationFiles(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
