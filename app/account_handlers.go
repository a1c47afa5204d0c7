// Package app provides public health, sign-up, and authenticated identity endpoints.
package app

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/yumekooo16/meteonext/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

type signUpRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
	DisplayName     string `json:"displayName" binding:"required"`
}

// SignUp validates the form synchronously, then provisions the account in
// the identity store and seeds the profile row. The password never touches
// our own storage.
func SignUp(c *gin.Context) {
	if identityClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signup not available"})
		return
	}

	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signup form"})
		return
	}

	user, err := identityClient.CreateUser(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		log.Printf("signup failed email=%s err=%v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}

	if db != nil {
		_, err = db.ExecContext(c.Request.Context(), `
			INSERT INTO profiles (user_id, email, display_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING;
		`, user.ID, user.Email, nullIfEmpty(req.DisplayName))
		if err != nil {
			log.Printf("profile seed failed user=%s err=%v", user.ID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// Me returns the caller's profile summary and feature access.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	if db == nil {
		access := featureAccess(true, false)
		c.JSON(http.StatusOK, gin.H{
			"email":         claims.Email,
			"premium":       false,
			"favoriteCount": 0,
			"access":        access,
		})
		return
	}

	profile, err := getProfileByUserID(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = UpsertProfileFromClaims(c.Request.Context(), claims)
			profile, err = getProfileByUserID(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
			return
		}
	}

	count, err := countFavorites(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("favorite count failed sub=%s err=%v", claims.Subject, err)
		count = 0
	}

	var displayName any
	if profile.DisplayName.Valid {
		displayName = profile.DisplayName.String
	}

	c.JSON(http.StatusOK, gin.H{
		"email":         profile.Email,
		"displayName":   displayName,
		"premium":       profile.Premium,
		"favoriteCount": count,
		"access":        featureAccess(true, profile.Premium),
	})
}

// DeleteAccount removes the identity record and cascades the app-side rows.
func DeleteAccount(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if identityClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "account deletion not available"})
		return
	}

	if err := identityClient.DeleteUser(c.Request.Context(), claims.Subject); err != nil {
		log.Printf("identity delete failed sub=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete account"})
		return
	}

	if db != nil {
		if err := deleteProfile(c.Request.Context(), claims.Subject); err != nil {
			// The identity record is already gone, so the account is dead
			// either way; the orphaned row cannot be reached again.
			log.Printf("profile delete failed sub=%s err=%v", claims.Subject, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
