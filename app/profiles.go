// Package app provides profile persistence for authenticated requests and
// the reconciler's entitlement writes.
package app

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/yumekooo16/meteonext/app/models"
	"github.com/yumekooo16/meteonext/auth"
)

// EntitlementUpdate is the target state a billing event resolves to.
// Nil pointer fields leave the corresponding column untouched.
type EntitlementUpdate struct {
	Premium              *bool
	SubscriptionStatus   *models.SubscriptionStatus
	StripeCustomerID     string
	StripeSubscriptionID string
	ActivatedAt          *time.Time
	DeactivatedAt        *time.Time
	// EventAt is the processor-assigned created time of the event being
	// applied; it becomes the profile's last_event_at watermark.
	EventAt time.Time
}

// UpsertProfileFromClaims creates a profile row if it does not already exist.
func UpsertProfileFromClaims(ctx context.Context, claims *auth.Claims) error {
	if db == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}

	name := readStringClaim(claims.Raw, "name")

	const q = `
		INSERT INTO profiles (user_id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING;
	`

	_, err := db.ExecContext(ctx, q, claims.Subject, claims.Email, nullIfEmpty(name))
	return err
}

func readStringClaim(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	val, ok := raw[key]
	if !ok {
		return ""
	}
	if s, ok := val.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

const profileColumns = `
	user_id, email, display_name, premium,
	stripe_customer_id, stripe_subscription_id, subscription_status,
	premium_activated_at, premium_deactivated_at, last_event_at,
	created_at, updated_at
`

func scanProfile(row *sql.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.UserID, &p.Email, &p.DisplayName, &p.Premium,
		&p.StripeCustomerID, &p.StripeSubscriptionID, &p.SubscriptionStatus,
		&p.PremiumActivatedAt, &p.PremiumDeactivatedAt, &p.LastEventAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getProfileByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return scanProfile(db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE user_id = $1;
	`, userID))
}

func getProfileBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Profile, error) {
	return scanProfile(db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE stripe_subscription_id = $1;
	`, subscriptionID))
}

// applyEntitlement writes the reconciler's target state to the profile row.
func applyEntitlement(ctx context.Context, userID string, upd EntitlementUpdate) error {
	_, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET premium                = COALESCE($2, premium),
		    subscription_status    = COALESCE($3, subscription_status),
		    stripe_customer_id     = COALESCE(NULLIF($4, ''), stripe_customer_id),
		    stripe_subscription_id = COALESCE(NULLIF($5, ''), stripe_subscription_id),
		    premium_activated_at   = COALESCE($6, premium_activated_at),
		    premium_deactivated_at = COALESCE($7, premium_deactivated_at),
		    last_event_at          = $8,
		    updated_at             = now()
		WHERE user_id = $1;
	`,
		userID,
		nullBool(upd.Premium),
		nullStatus(upd.SubscriptionStatus),
		upd.StripeCustomerID,
		upd.StripeSubscriptionID,
		nullTime(upd.ActivatedAt),
		nullTime(upd.DeactivatedAt),
		upd.EventAt,
	)
	return err
}

func setStripeCustomerID(ctx context.Context, userID, customerID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET stripe_customer_id = $1, updated_at = now()
		WHERE user_id = $2;
	`, customerID, userID)
	return err
}

func deleteProfile(ctx context.Context, userID string) error {
	// favorites cascade via the FK.
	_, err := db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1;`, userID)
	return err
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullStatus(s *models.SubscriptionStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// dbProfileStore adapts the global db to the reconciler's ProfileStore.
type dbProfileStore struct{}

func (dbProfileStore) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return getProfileByUserID(ctx, userID)
}

func (dbProfileStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Profile, error) {
	return getProfileBySubscriptionID(ctx, subscriptionID)
}

func (dbProfileStore) ApplyEntitlement(ctx context.Context, userID string, upd EntitlementUpdate) error {
	return applyEntitlement(ctx, userID, upd)
}
