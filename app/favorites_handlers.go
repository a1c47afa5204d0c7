package app

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-gonic/gin"
)

type addFavoriteRequest struct {
	CityName string `json:"cityName" binding:"required"`
}

// ListFavorites returns the caller's favorite cities.
func ListFavorites(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	favorites, err := listFavorites(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("favorites list failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load favorites"})
		return
	}

	premium := premiumForRequest(c.Request.Context(), claims.Subject)
	c.JSON(http.StatusOK, gin.H{
		"favorites": favorites,
		"count":     len(favorites),
		"limit":     favoriteLimitFor(premium),
	})
}

// AddFavorite saves a city, enforcing the plan's cap at the write path.
func AddFavorite(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	var req addFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.CityName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cityName is required"})
		return
	}

	premium := premiumForRequest(c.Request.Context(), claims.Subject)

	fav, err := addFavorite(c.Request.Context(), claims.Subject, req.CityName, premium)
	if err != nil {
		var limitErr favoriteLimitError
		if errors.As(err, &limitErr) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "favorite limit reached",
				"limit": limitErr.Limit,
				"count": limitErr.Count,
			})
			return
		}
		if errors.Is(err, errDuplicateFavorite) {
			c.JSON(http.StatusConflict, gin.H{"error": "city already in favorites"})
			return
		}
		log.Printf("favorite insert failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save favorite"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"favorite": fav})
}

// DeleteFavorite removes one of the caller's favorites.
func DeleteFavorite(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	favoriteID := c.Param("id")
	deleted, err := deleteFavorite(c.Request.Context(), claims.Subject, favoriteID)
	if err != nil {
		log.Printf("favorite delete failed sub=%s id=%s err=%v", claims.Subject, favoriteID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete favorite"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "favorite not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
