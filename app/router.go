// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"log"
	"time"

	"github.com/yumekooo16/meteonext/app/config"
	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter() (*gin.Engine, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateIdentity(); err != nil {
		log.Fatalf("identity config invalid: %v", err)
	}
	identityClient, err = NewIdentityClient(cfg.Identity.BaseURL, cfg.Identity.ServiceKey)
	if err != nil {
		return nil, err
	}
	reconciler = NewReconciler(identityClient, dbProfileStore{}, stripeCustomerEmails{})

	if err := cfg.ValidateWeather(); err != nil {
		log.Fatalf("weather config invalid: %v", err)
	}
	weatherClient, err = NewWeatherClient(cfg.Weather.APIKey, cfg.Weather.BaseURL)
	if err != nil {
		return nil, err
	}
	maxForecastDays = cfg.Weather.MaxForecastDays

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.POST("/api/stripe/webhook", StripeWebhook)
	router.POST("/api/signup", SignUp)

	verifier, err := auth.NewVerifierFromEnv()
	if err != nil && !auth.AuthDisabled() {
		return nil, err
	}

	protected := router.Group("/")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) error {
			return UpsertProfileFromClaims(c.Request.Context(), claims)
		},
	}))
	protected.GET("/me", Me)
	protected.DELETE("/api/account", DeleteAccount)
	protected.GET("/api/weather", GetWeather)
	protected.GET("/api/weather/search", SearchCities)
	protected.GET("/api/favorites", ListFavorites)
	protected.POST("/api/favorites", AddFavorite)
	protected.DELETE("/api/favorites/:id", DeleteFavorite)
	protected.GET("/api/favorites/weather", GetFavoritesWeather)
	protected.GET("/api/premium/status", GetPremiumStatus)
	protected.POST("/api/premium/sync", SyncPremiumStatus)
	protected.POST("/api/billing/create-checkout-session", CreateCheckoutSession)
	protected.POST("/api/billing/verify-session", VerifyCheckoutSession)
	protected.POST("/api/billing/portal-session", CreatePortalSession)

	return router, nil
}
