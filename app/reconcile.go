// Package app reconciles payment-processor lifecycle events into a single
// user's entitlement state. The identity store's premium flag is the system
// of record; the profile row is a best-effort replica.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yumekooo16/meteonext/app/models"

	"github.com/stripe/stripe-go/v79"
)

// IdentityAdmin is the slice of the identity client the reconciler needs.
type IdentityAdmin interface {
	GetUserByEmail(ctx context.Context, email string) (*IdentityUser, error)
	UpdateUserMetadata(ctx context.Context, userID string, meta map[string]any) error
}

// ProfileStore is the slice of the profile datastore the reconciler needs.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Profile, error)
	ApplyEntitlement(ctx context.Context, userID string, upd EntitlementUpdate) error
}

// CustomerEmailResolver maps a processor customer id to an email address.
type CustomerEmailResolver interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// errUnresolvedUser marks events whose target user cannot be found. They are
// acknowledged and dropped: erroring back at the processor would make it
// retry an event that can never resolve.
var errUnresolvedUser = errors.New("no user resolvable for event")

// Reconciler applies billing events to the identity store and profile row.
type Reconciler struct {
	identity IdentityAdmin
	profiles ProfileStore
	payments CustomerEmailResolver
	now      func() time.Time
}

// NewReconciler wires a reconciler over its three collaborators.
func NewReconciler(identity IdentityAdmin, profiles ProfileStore, payments CustomerEmailResolver) *Reconciler {
	return &Reconciler{
		identity: identity,
		profiles: profiles,
		payments: payments,
		now:      time.Now,
	}
}

// HandleEvent maps one verified event to entitlement writes. A returned error
// means reconciliation failed internally; callers log it but still
// acknowledge the delivery.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event) error {
	var err error
	switch event.Type {
	case "checkout.session.completed":
		err = r.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created":
		err = r.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.updated":
		err = r.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = r.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		err = r.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = r.handleInvoiceFailed(ctx, event)
	default:
		log.Printf("stripe event ignored type=%s id=%s", event.Type, event.ID)
		return nil
	}

	if errors.Is(err, errUnresolvedUser) {
		log.Printf("stripe event dropped, user unresolved type=%s id=%s", event.Type, event.ID)
		return nil
	}
	return err
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("checkout session unmarshal: %w", err)
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		email := checkoutEmail(&sess)
		var err error
		userID, err = r.resolveByEmail(ctx, customerID, email)
		if err != nil {
			return err
		}
	}

	premium := true
	activated := r.now().UTC()
	return r.apply(ctx, userID, event, EntitlementUpdate{
		Premium:              &premium,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		ActivatedAt:          &activated,
	})
}

func (r *Reconciler) handleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	sub, err := unmarshalSubscription(event)
	if err != nil {
		return err
	}

	userID, err := r.resolveByCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}

	premium := true
	return r.apply(ctx, userID, event, EntitlementUpdate{
		Premium:              &premium,
		StripeCustomerID:     customerIDOf(sub.Customer),
		StripeSubscriptionID: sub.ID,
	})
}

func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	sub, err := unmarshalSubscription(event)
	if err != nil {
		return err
	}

	userID, err := r.resolveByCustomer(ctx, sub.Customer)
	if err != nil {
		return err
	}

	premium := sub.Status == stripe.SubscriptionStatusActive
	status := models.SubscriptionStatus(sub.Status)
	return r.apply(ctx, userID, event, EntitlementUpdate{
		Premium:              &premium,
		SubscriptionStatus:   &status,
		StripeCustomerID:     customerIDOf(sub.Customer),
		StripeSubscriptionID: sub.ID,
	})
}

func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	sub, err := unmarshalSubscription(event)
	if err != nil {
		return err
	}

	userID, err := r.resolveByCustomer(ctx, sub.Customer)
	if errors.Is(err, errUnresolvedUser) {
		// Deletion may outlive the customer record; fall back to the
		// subscription linkage on the profile.
		userID, err = r.resolveBySubscription(ctx, sub.ID)
	}
	if err != nil {
		return err
	}

	premium := false
	status := models.SubscriptionCanceled
	deactivated := r.now().UTC()
	return r.apply(ctx, userID, event, EntitlementUpdate{
		Premium:              &premium,
		SubscriptionStatus:   &status,
		StripeSubscriptionID: sub.ID,
		DeactivatedAt:        &deactivated,
	})
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("invoice unmarshal: %w", err)
	}

	userID, err := r.resolveByCustomer(ctx, inv.Customer)
	if err != nil {
		return err
	}

	premium := true
	return r.apply(ctx, userID, event, EntitlementUpdate{
		Premium:          &premium,
		StripeCustomerID: customerIDOf(inv.Customer),
	})
}

func (r *Reconciler) handleInvoiceFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("invoice unmarshal: %w", err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return errUnresolvedUser
	}

	userID, err := r.resolveBySubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return err
	}

	// Premium stays as-is until the subscription itself changes state.
	status := models.SubscriptionPastDue
	return r.apply(ctx, userID, event, EntitlementUpdate{
		SubscriptionStatus:   &status,
		StripeSubscriptionID: inv.Subscription.ID,
	})
}

// resolveByCustomer maps customer id -> processor email -> identity user.
func (r *Reconciler) resolveByCustomer(ctx context.Context, cust *stripe.Customer) (string, error) {
	return r.resolveByEmail(ctx, customerIDOf(cust), "")
}

func (r *Reconciler) resolveByEmail(ctx context.Context, customerID, email string) (string, error) {
	if email == "" {
		if customerID == "" {
			return "", errUnresolvedUser
		}
		var err error
		email, err = r.payments.CustomerEmail(ctx, customerID)
		if err != nil {
			return "", fmt.Errorf("customer email lookup failed customer=%s: %w", customerID, err)
		}
		if email == "" {
			return "", errUnresolvedUser
		}
	}

	user, err := r.identity.GetUserByEmail(ctx, email)
	if errors.Is(err, errIdentityUserNotFound) {
		return "", errUnresolvedUser
	}
	if err != nil {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}
	return user.ID, nil
}

func (r *Reconciler) resolveBySubscription(ctx context.Context, subscriptionID string) (string, error) {
	profile, err := r.profiles.GetBySubscriptionID(ctx, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errUnresolvedUser
	}
	if err != nil {
		return "", fmt.Errorf("profile lookup failed subscription=%s: %w", subscriptionID, err)
	}
	return profile.UserID, nil
}

// apply performs the two-step write: identity store first (authoritative),
// then the profile row best-effort. The profile's last_event_at watermark
// rejects deliveries older than the last applied event, so a late "created"
// cannot resurrect entitlement after a "deleted".
func (r *Reconciler) apply(ctx context.Context, userID string, event stripe.Event, upd EntitlementUpdate) error {
	upd.EventAt = time.Unix(event.Created, 0).UTC()

	profile, err := r.profiles.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile read failed user=%s: %w", userID, err)
	}
	if profile != nil && profile.LastEventAt.Valid && upd.EventAt.Before(profile.LastEventAt.Time) {
		log.Printf("stripe event stale, skipped type=%s id=%s user=%s event_at=%s watermark=%s",
			event.Type, event.ID, userID, upd.EventAt.Format(time.RFC3339), profile.LastEventAt.Time.Format(time.RFC3339))
		return nil
	}

	meta := map[string]any{
		"payment_id":         event.ID,
		"premium_updated_at": r.now().UTC().Format(time.RFC3339),
	}
	if upd.Premium != nil {
		meta["premium"] = *upd.Premium
	}
	if upd.StripeSubscriptionID != "" {
		meta["subscription_id"] = upd.StripeSubscriptionID
	}

	if err := r.identity.UpdateUserMetadata(ctx, userID, meta); err != nil {
		return fmt.Errorf("identity update failed user=%s event=%s: %w", userID, event.ID, err)
	}

	if err := r.profiles.ApplyEntitlement(ctx, userID, upd); err != nil {
		// Profile is a denormalized cache; a missed write is repairable
		// via the premium sync endpoint.
		log.Printf("profile update failed user=%s event=%s err=%v", userID, event.ID, err)
	}
	return nil
}

func customerIDOf(cust *stripe.Customer) string {
	if cust == nil {
		return ""
	}
	return cust.ID
}

func checkoutEmail(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}
	return sess.CustomerEmail
}

func unmarshalSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("subscription unmarshal: %w", err)
	}
	return &sub, nil
}
