package app

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/yumekooo16/meteonext/app/models"
	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/subscription"
)

// identityClient is wired once at router construction.
var identityClient *IdentityClient

// GetPremiumStatus returns the caller's entitlement view from the profile row.
func GetPremiumStatus(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	profile, err := getProfileByUserID(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = UpsertProfileFromClaims(c.Request.Context(), claims)
			profile, err = getProfileByUserID(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			log.Printf("premium status lookup failed sub=%s err=%v", claims.Subject, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
			return
		}
	}

	var status any
	if profile.SubscriptionStatus.Valid {
		status = profile.SubscriptionStatus.String
	}
	var subscriptionID any
	if profile.StripeSubscriptionID.Valid {
		subscriptionID = profile.StripeSubscriptionID.String
	}
	var activatedAt any
	if profile.PremiumActivatedAt.Valid {
		activatedAt = profile.PremiumActivatedAt.Time.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, gin.H{
		"isPremium":          profile.Premium,
		"subscriptionStatus": status,
		"subscriptionId":     subscriptionID,
		"activatedAt":        activatedAt,
	})
}

// SyncPremiumStatus is the idempotent repair pass: it re-reads the
// subscription from the processor and rewrites both entitlement copies.
// Safe to re-run whenever the profile may have drifted.
func SyncPremiumStatus(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil || identityClient == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync not available"})
		return
	}

	profile, err := getProfileByUserID(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("premium sync profile lookup failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if !profile.StripeSubscriptionID.Valid || profile.StripeSubscriptionID.String == "" {
		c.JSON(http.StatusOK, gin.H{"synced": false, "error": "no subscription on file"})
		return
	}
	subscriptionID := profile.StripeSubscriptionID.String

	params := &stripe.SubscriptionParams{}
	params.Context = c.Request.Context()
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		log.Printf("premium sync subscription lookup failed id=%s err=%v", subscriptionID, err)
		c.JSON(stripeStatusCode(err), gin.H{"error": "failed to load subscription"})
		return
	}

	isActive := sub.Status == stripe.SubscriptionStatusActive
	now := time.Now().UTC()

	err = identityClient.UpdateUserMetadata(c.Request.Context(), claims.Subject, map[string]any{
		"premium":         isActive,
		"subscription_id": subscriptionID,
		"synced_at":       now.Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("premium sync identity update failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update identity"})
		return
	}

	status := models.SubscriptionStatus(sub.Status)
	err = applyEntitlement(c.Request.Context(), claims.Subject, EntitlementUpdate{
		Premium:              &isActive,
		SubscriptionStatus:   &status,
		StripeSubscriptionID: subscriptionID,
		EventAt:              now,
	})
	if err != nil {
		// Identity already holds the truth; the next sync can repair the row.
		log.Printf("premium sync profile update failed sub=%s err=%v", claims.Subject, err)
	}

	c.JSON(http.StatusOK, gin.H{
		"synced":  true,
		"premium": isActive,
		"subscription": gin.H{
			"id":     subscriptionID,
			"status": sub.Status,
		},
	})
}
