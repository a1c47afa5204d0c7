// Package app talks to the identity store's admin API. The identity store
// owns credentials and session tokens; this client only reads users and
// writes entitlement metadata.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var httpc = &http.Client{Timeout: 15 * time.Second}

var errIdentityUserNotFound = errors.New("identity user not found")

// IdentityUser is the identity store's view of an account.
type IdentityUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Premium reads the entitlement flag from user metadata.
func (u *IdentityUser) Premium() bool {
	if u == nil || u.UserMetadata == nil {
		return false
	}
	premium, _ := u.UserMetadata["premium"].(bool)
	return premium
}

// IdentityClient is the HTTP admin client for the identity store.
type IdentityClient struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

// NewIdentityClient builds an admin client for the given base URL and service key.
func NewIdentityClient(baseURL, serviceKey string) (*IdentityClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity base URL must be set")
	}
	if serviceKey == "" {
		return nil, errors.New("identity service key must be set")
	}
	return &IdentityClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		client:     httpc,
	}, nil
}

func (ic *IdentityClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, ic.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+ic.serviceKey)
	req.Header.Set("apikey", ic.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ic.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errIdentityUserNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("identity store returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// GetUser fetches a user by id.
func (ic *IdentityClient) GetUser(ctx context.Context, userID string) (*IdentityUser, error) {
	if userID == "" {
		return nil, errors.New("missing user id")
	}
	var user IdentityUser
	if err := ic.do(ctx, http.MethodGet, "/admin/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail resolves a user through the store's indexed email lookup.
// Matching is exact and case-sensitive on the store side.
func (ic *IdentityClient) GetUserByEmail(ctx context.Context, email string) (*IdentityUser, error) {
	if email == "" {
		return nil, errors.New("missing email")
	}

	var payload struct {
		Users []IdentityUser `json:"users"`
	}
	q := url.Values{}
	q.Set("email", email)
	if err := ic.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	for i := range payload.Users {
		if payload.Users[i].Email == email {
			return &payload.Users[i], nil
		}
	}
	return nil, errIdentityUserNotFound
}

// UpdateUserMetadata merges the given keys into the user's metadata.
func (ic *IdentityClient) UpdateUserMetadata(ctx context.Context, userID string, meta map[string]any) error {
	if userID == "" {
		return errors.New("missing user id")
	}
	body := map[string]any{"user_metadata": meta}
	return ic.do(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(userID), body, nil)
}

// CreateUser provisions a confirmed account with the given credential.
func (ic *IdentityClient) CreateUser(ctx context.Context, email, password, displayName string) (*IdentityUser, error) {
	body := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]any{
			"name":    displayName,
			"premium": false,
		},
	}
	var user IdentityUser
	if err := ic.do(ctx, http.MethodPost, "/admin/users", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes the account from the identity store.
func (ic *IdentityClient) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("missing user id")
	}
	return ic.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), nil, nil)
}
