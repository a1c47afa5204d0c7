package app

import (
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/yumekooo16/meteonext/app/config"
	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// reconciler is wired once at router construction.
var reconciler *Reconciler

type checkoutProductData struct {
	Name string `json:"name" binding:"required"`
}

type checkoutPriceData struct {
	Currency    string              `json:"currency" binding:"required,len=3"`
	ProductData checkoutProductData `json:"product_data" binding:"required"`
	// UnitAmount is in minor currency units (cents).
	UnitAmount int64 `json:"unit_amount" binding:"required,gt=0"`
}

type checkoutItem struct {
	PriceData checkoutPriceData `json:"price_data" binding:"required"`
	Quantity  int64             `json:"quantity" binding:"required,gt=0"`
}

type createCheckoutRequest struct {
	Items []checkoutItem `json:"items" binding:"required,min=1,dive"`
}

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated user.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line items"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for sub=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe checkout config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(item.PriceData.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.PriceData.ProductData.Name),
				},
				UnitAmount: stripe.Int64(item.PriceData.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:                 stripe.String(stripeCustomerID),
		LineItems:                lineItems,
		SuccessURL:               stripe.String(frontendURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(frontendURL + "/compte?canceled=true"),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
	}
	params.AddMetadata("user_id", claims.Subject)
	params.AddMetadata("source", "web_checkout")

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(stripeStatusCode(err), gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL, "sessionId": sess.ID})
}

type verifySessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// VerifyCheckoutSession returns the state of a checkout session so the
// success page can confirm payment before celebrating.
func VerifyCheckoutSession(c *gin.Context) {
	var req verifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
		return
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = c.Request.Context()
	params.AddExpand("line_items")

	sess, err := session.Get(req.SessionID, params)
	if err != nil {
		log.Printf("stripe session lookup failed id=%s err=%v", req.SessionID, err)
		c.JSON(stripeStatusCode(err), gin.H{"error": "session not found"})
		return
	}

	items := []gin.H{}
	if sess.LineItems != nil {
		for _, li := range sess.LineItems.Data {
			items = append(items, gin.H{
				"description": li.Description,
				"quantity":    li.Quantity,
				"amountTotal": li.AmountTotal,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            sess.ID,
		"status":        sess.Status,
		"paymentStatus": sess.PaymentStatus,
		"customerEmail": checkoutEmail(sess),
		"amountTotal":   sess.AmountTotal,
		"currency":      sess.Currency,
		"lineItems":     items,
	})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	var stripeCustomerID sql.NullString
	err := db.QueryRowContext(
		c.Request.Context(),
		`
			SELECT stripe_customer_id
			FROM profiles
			WHERE user_id = $1;
		`,
		claims.Subject,
	).Scan(&stripeCustomerID)
	if err != nil {
		log.Printf("portal lookup failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if !stripeCustomerID.Valid || stripeCustomerID.String == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("portal config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(stripeCustomerID.String),
		ReturnURL: stripe.String(frontendURL + "/compte"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(stripeStatusCode(err), gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// StripeWebhook verifies and dispatches payment lifecycle events. Once the
// signature checks out, the delivery is always acknowledged: failing here
// would only make the processor redeliver an event we already cannot apply.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	if reconciler == nil {
		log.Printf("stripe webhook received before reconciler init id=%s", event.ID)
	} else if err := reconciler.HandleEvent(c.Request.Context(), event); err != nil {
		log.Printf("reconciliation failed type=%s id=%s err=%v", event.Type, event.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// stripeStatusCode passes the processor's status through when available.
func stripeStatusCode(err error) int {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode > 0 {
		return stripeErr.HTTPStatusCode
	}
	return http.StatusInternalServerError
}
