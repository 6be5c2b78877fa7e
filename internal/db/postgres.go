package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the tenants table when missing. Schema changes beyond that
// are handled out of band.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS tenants (
            tenant_key             TEXT PRIMARY KEY,
            plan_tier              TEXT NOT NULL,
            used_seconds_cycle     INTEGER NOT NULL DEFAULT 0,
            renewal_at             TIMESTAMPTZ NOT NULL,
            created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            allowed_domains        TEXT[] NOT NULL DEFAULT '{}',
            status                 TEXT NOT NULL DEFAULT 'active',
            contact_email          TEXT NOT NULL DEFAULT '',
            quota_override_seconds INTEGER
        )
    `)
	return err
}

func (db *DB) Close() {
	db.Pool.Close()
}
