package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/yumekooo16/meteonext/app/config"

	_ "github.com/lib/pq"
)

var db *sql.DB

// MustInitDB initializes the global db and panics/logs fatally on error.
func MustInitDB() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		cfg.DB.Username,
		cfg.DB.Password,
		cfg.DB.URL,
		cfg.DB.Port,
		cfg.DB.Name,
	)

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("sql.Open: %v", err)
	}

	if err := d.Ping(); err != nil {
		log.Fatalf("db.Ping: %v", err)
	}

	if err := ensureSchema(context.Background(), d); err != nil {
		log.Fatalf("schema bootstrap failed: %v", err)
	}

	log.Println("Connected to Postgres")
	db = d
}

func ensureSchema(ctx context.Context, d *sql.DB) error {
	_, err := d.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profiles (
			user_id                 TEXT PRIMARY KEY,
			email                   TEXT NOT NULL,
			display_name            TEXT,
			premium                 BOOLEAN NOT NULL DEFAULT FALSE,
			stripe_customer_id      TEXT,
			stripe_subscription_id  TEXT,
			subscription_status     TEXT,
			premium_activated_at    TIMESTAMPTZ,
			premium_deactivated_at  TIMESTAMPTZ,
			last_event_at           TIMESTAMPTZ,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return err
	}

	_, err = d.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS profiles_stripe_customer_idx
			ON profiles (stripe_customer_id);
	`)
	if err != nil {
		return err
	}

	_, err = d.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS profiles_stripe_subscription_idx
			ON profiles (stripe_subscription_id);
	`)
	if err != nil {
		return err
	}

	_, err = d.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS favorites (
			id          UUID PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES profiles (user_id) ON DELETE CASCADE,
			city_name   TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, city_name)
		);
	`)
	return err
}
