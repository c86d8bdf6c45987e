// Package postgres stores credential users in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements credential.Repository on a users table.
type Repository struct {
	db DB
}

// New wraps an open pool. Schema is managed by [Migrate].
func New(db DB) *Repository {
	return &Repository{db: db}
}

// Connect parses dsn, opens a pool, and pings it within ctx.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const selectColumns = `id, country_code, phone_number, name, email, password_hash, is_active,
	last_active, pref_language, pref_currency, pref_timezone, pref_notifications, created_at, updated_at`

func (r *Repository) FindByIdentity(ctx context.Context, id credential.Identity) (credential.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM users WHERE country_code = $1 AND phone_number = $2`,
		id.CountryCode, id.PhoneNumber)
	return scanUser(row)
}

func (r *Repository) FindByID(ctx context.Context, id string) (credential.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *Repository) Insert(ctx context.Context, u credential.User) error {
	if _, err := credential.NewUser(u); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO users (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Identity.CountryCode, u.Identity.PhoneNumber, u.Name, u.Email, u.PasswordHash, u.IsActive,
		u.LastActive, u.Preferences.Language, u.Preferences.Currency, u.Preferences.Timezone,
		u.Preferences.Notifications, u.CreatedAt, u.UpdatedAt)
	return mapError(err)
}

func (r *Repository) Update(ctx context.Context, u credential.User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET name = $2, email = $3, password_hash = $4, is_active = $5,
		pref_language = $6, pref_currency = $7, pref_timezone = $8, pref_notifications = $9, updated_at = $10
		WHERE id = $1`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.IsActive, u.Preferences.Language, u.Preferences.Currency,
		u.Preferences.Timezone, u.Preferences.Notifications, u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

func (r *Repository) ClaimProvisional(ctx context.Context, u credential.User) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET name = $2, email = $3, password_hash = $4, is_active = $5,
		pref_language = $6, pref_currency = $7, pref_timezone = $8, pref_notifications = $9, updated_at = $10
		WHERE id = $1 AND password_hash = ''`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.IsActive, u.Preferences.Language, u.Preferences.Currency,
		u.Preferences.Timezone, u.Preferences.Notifications, u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or someone claimed it first.
		if _, err := r.FindByID(ctx, u.ID); err != nil {
			return err
		}
		return credential.ErrConflict
	}
	return nil
}

func (r *Repository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET last_active = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (credential.User, error) {
	var u credential.User
	err := row.Scan(&u.ID, &u.Identity.CountryCode, &u.Identity.PhoneNumber, &u.Name, &u.Email,
		&u.PasswordHash, &u.IsActive, &u.LastActive, &u.Preferences.Language, &u.Preferences.Currency,
		&u.Preferences.Timezone, &u.Preferences.Notifications, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return credential.User{}, mapError(err)
	}
	return credential.NewUser(u)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return credential.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return credential.ErrConflict
	}
	return fmt.Errorf("credential/postgres: %w", err)
}
