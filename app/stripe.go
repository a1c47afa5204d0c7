package app

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/yumekooo16/meteonext/app/config"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key from the environment.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	if err := cfg.ValidateBilling(); err != nil {
		log.Fatalf("billing config invalid: %v", err)
	}
	stripe.Key = cfg.Stripe.SecretKey
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given user.
// It uses profiles.stripe_customer_id when present, otherwise creates a new
// customer with metadata user_id = <userID>, then stores that on the profile.
func ensureStripeCustomer(ctx context.Context, userID, email string) (string, error) {
	if db == nil {
		return "", errors.New("db not initialized")
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}

	var stripeID sql.NullString
	err := db.QueryRowContext(
		ctx,
		`
			SELECT stripe_customer_id
			FROM profiles
			WHERE user_id = $1;
		`,
		userID,
	).Scan(&stripeID)
	if err != nil {
		return "", err
	}

	if stripeID.Valid && stripeID.String != "" {
		return stripeID.String, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	if err := setStripeCustomerID(ctx, userID, cust.ID); err != nil {
		return "", err
	}

	return cust.ID, nil
}

// stripeCustomerEmails resolves processor customer ids to email addresses
// for the reconciler.
type stripeCustomerEmails struct{}

func (stripeCustomerEmails) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(customerID, params)
	if err != nil {
		return "", err
	}
	return cust.Email, nil
}
