package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-gonic/gin"
)

// weatherClient is wired once at router construction.
var weatherClient *WeatherClient

// maxForecastDays is the premium horizon, set from config at router construction.
var maxForecastDays = 5

// GetWeather proxies a forecast lookup for ?q=<city|lat,lon>&days=N.
// Forecast depth is clamped to the caller's plan.
func GetWeather(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if weatherClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather not configured"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q parameter"})
		return
	}

	requested := 1
	if raw := c.Query("days"); raw != "" {
		v, err := parsePositiveInt(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days parameter"})
			return
		}
		requested = v
	}

	premium := premiumForRequest(c.Request.Context(), claims.Subject)
	days := forecastDaysAllowed(premium, requested, maxForecastDays)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	report, err := weatherClient.Forecast(ctx, q, days)
	if err != nil {
		if errors.Is(err, errCityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "city not found"})
			return
		}
		log.Printf("weather lookup failed q=%s err=%v", q, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "weather lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"weather":      report,
		"daysReturned": days,
		"premium":      premium,
	})
}

// SearchCities proxies city autocomplete, capped at five suggestions.
func SearchCities(c *gin.Context) {
	if weatherClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather not configured"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q parameter"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	hits, err := weatherClient.Search(ctx, q, 5)
	if err != nil {
		log.Printf("city search failed q=%s err=%v", q, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "city search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cities": hits})
}

// GetFavoritesWeather fetches the forecast for every favorite city in
// parallel. A city whose lookup fails gets an error marker in its slot; the
// batch always succeeds.
func GetFavoritesWeather(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if weatherClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather not configured"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	favorites, err := listFavorites(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("favorites lookup failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load favorites"})
		return
	}

	cities := make([]CityWeather, 0, len(favorites))
	for _, fav := range favorites {
		cities = append(cities, CityWeather{FavoriteID: fav.ID, CityName: fav.CityName})
	}

	premium := premiumForRequest(c.Request.Context(), claims.Subject)
	days := forecastDaysAllowed(premium, maxForecastDays, maxForecastDays)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 25*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"cities":  weatherClient.forecastBatch(ctx, cities, days),
		"days":    days,
		"premium": premium,
	})
}

// premiumForRequest reads the profile's premium flag; a missing or failing
// read degrades to free-tier access rather than failing the request.
func premiumForRequest(ctx context.Context, userID string) bool {
	if db == nil {
		return false
	}
	profile, err := getProfileByUserID(ctx, userID)
	if err != nil {
		return false
	}
	return profile.Premium
}
