package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	DB       PostgresConfig
	Auth     AuthConfig
	Identity IdentityConfig
	Stripe   StripeConfig
	Weather  WeatherConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
}

type AuthConfig struct {
	Issuer   string
	Audience string
	// JWKSURL overrides the default <issuer>/.well-known/jwks.json.
	JWKSURL string
}

// IdentityConfig points at the identity store's admin API.
type IdentityConfig struct {
	BaseURL    string
	ServiceKey string
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	PublishableKey string
	FrontendURL    string
}

type WeatherConfig struct {
	APIKey string
	// BaseURL overrides https://api.weatherapi.com/v1 (used by tests).
	BaseURL string
	// MaxForecastDays is the premium forecast horizon.
	MaxForecastDays int
}

const defaultMaxForecastDays = 5

func LoadConfig() (*Config, error) {
	maxDays := defaultMaxForecastDays
	if raw := os.Getenv("WEATHER_MAX_FORECAST_DAYS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid WEATHER_MAX_FORECAST_DAYS: %q", raw)
		}
		maxDays = v
	}

	cfg := &Config{
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Name:     os.Getenv("POSTGRES_DB"),
		},
		Auth: AuthConfig{
			Issuer:   os.Getenv("AUTH_ISSUER"),
			Audience: os.Getenv("AUTH_AUDIENCE"),
			JWKSURL:  os.Getenv("AUTH_JWKS_URL"),
		},
		Identity: IdentityConfig{
			BaseURL:    os.Getenv("IDENTITY_URL"),
			ServiceKey: os.Getenv("IDENTITY_SERVICE_KEY"),
		},
		Stripe: StripeConfig{
			SecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
			FrontendURL:    os.Getenv("FRONTEND_URL"),
		},
		Weather: WeatherConfig{
			APIKey:          os.Getenv("WEATHER_API_KEY"),
			BaseURL:         os.Getenv("WEATHER_API_URL"),
			MaxForecastDays: maxDays,
		},
	}

	return cfg, nil
}

// ValidateBilling reports whether the billing feature can start.
func (c *Config) ValidateBilling() error {
	if c.Stripe.SecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY must be set")
	}
	if c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET must be set")
	}
	if c.Stripe.FrontendURL == "" {
		return errors.New("FRONTEND_URL must be set")
	}
	return nil
}

// ValidateIdentity reports whether the identity admin client can start.
func (c *Config) ValidateIdentity() error {
	if c.Identity.BaseURL == "" {
		return errors.New("IDENTITY_URL must be set")
	}
	if c.Identity.ServiceKey == "" {
		return errors.New("IDENTITY_SERVICE_KEY must be set")
	}
	return nil
}

// ValidateWeather reports whether the weather proxy can start.
func (c *Config) ValidateWeather() error {
	if c.Weather.APIKey == "" {
		return errors.New("WEATHER_API_KEY must be set")
	}
	return nil
}
