package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.healthexport.dev/ingest/pg"
)

// PgStore is the Postgres-backed Store: api_keys joined to users.
type PgStore struct {
	conn *pg.Client
}

// NewPgStore builds a PgStore over conn.
func NewPgStore(conn *pg.Client) *PgStore {
	return &PgStore{conn: conn}
}

func (s *PgStore) CredentialByID(ctx context.Context, id uuid.UUID) (Credential, User, error) {
	var (
		credential Credential
		user       User
		rawPerms   []byte
	)

	err := s.conn.WithConn(ctx, func(conn pg.Conn) error {
		return conn.QueryRow(ctx, `
			SELECT k.id, k.user_id, k.name, k.secret_hash, k.permissions,
			       k.is_active, k.rate_limit_per_hour, k.expires_at, k.last_used_at,
			       u.id, u.email, u.is_active
			FROM api_keys k
			JOIN users u ON u.id = k.user_id
			WHERE k.id = $1
		`, id).Scan(
			&credential.ID, &credential.UserID, &credential.Name, &credential.SecretHash, &rawPerms,
			&credential.IsActive, &credential.RateLimitPerHour, &credential.ExpiresAt, &credential.LastUsedAt,
			&user.ID, &user.Email, &user.IsActive,
		)
	})
	if err != nil {
		return Credential{}, User{}, fmt.Errorf("auth: load credential %s: %w", id, err)
	}

	credential.Permissions = ParsePermissions(rawPerms)
	return credential, user, nil
}

func (s *PgStore) ActiveCredentials(ctx context.Context) ([]CredentialRow, error) {
	var rows []CredentialRow

	err := s.conn.WithConn(ctx, func(conn pg.Conn) error {
		result, err := conn.Query(ctx, `
			SELECT k.id, k.user_id, k.name, k.secret_hash, k.permissions,
			       k.is_active, k.rate_limit_per_hour, k.expires_at, k.last_used_at,
			       u.id, u.email, u.is_active
			FROM api_keys k
			JOIN users u ON u.id = k.user_id
			WHERE k.is_active AND u.is_active
			  AND (k.expires_at IS NULL OR k.expires_at > now())
		`)
		if err != nil {
			return err
		}
		defer result.Close()

		for result.Next() {
			var (
				row      CredentialRow
				rawPerms []byte
			)
			if err := result.Scan(
				&row.Credential.ID, &row.Credential.UserID, &row.Credential.Name, &row.Credential.SecretHash, &rawPerms,
				&row.Credential.IsActive, &row.Credential.RateLimitPerHour, &row.Credential.ExpiresAt, &row.Credential.LastUsedAt,
				&row.User.ID, &row.User.Email, &row.User.IsActive,
			); err != nil {
				return err
			}
			row.Credential.Permissions = ParsePermissions(rawPerms)
			rows = append(rows, row)
		}
		return result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("auth: load active credentials: %w", err)
	}

	return rows, nil
}

func (s *PgStore) TouchLastUsed(ctx context.Context, credentialID uuid.UUID, at time.Time) error {
	return s.conn.WithConn(ctx, func(conn pg.Conn) error {
		_, err := conn.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, credentialID)
		return err
	})
}
