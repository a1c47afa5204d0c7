// Package models defines profile, entitlement, and favorite city records.
package models

import (
	"database/sql"
	"time"
)

// SubscriptionStatus mirrors the payment processor's subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Profile is the app-side row mirroring entitlement and billing linkage.
// The identity store's premium flag is authoritative; this row is a
// read-optimized copy kept in sync by the reconciler.
type Profile struct {
	UserID               string         `db:"user_id"`
	Email                string         `db:"email"`
	DisplayName          sql.NullString `db:"display_name"`
	Premium              bool           `db:"premium"`
	StripeCustomerID     sql.NullString `db:"stripe_customer_id"`
	StripeSubscriptionID sql.NullString `db:"stripe_subscription_id"`
	SubscriptionStatus   sql.NullString `db:"subscription_status"`
	PremiumActivatedAt   sql.NullTime   `db:"premium_activated_at"`
	PremiumDeactivatedAt sql.NullTime   `db:"premium_deactivated_at"`
	// LastEventAt is the processor-assigned created time of the last
	// applied billing event, used to reject stale deliveries.
	LastEventAt sql.NullTime `db:"last_event_at"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// Favorite is a saved city for a user.
type Favorite struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"-" db:"user_id"`
	CityName  string    `json:"cityName" db:"city_name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
