package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newIdentityTestServer(t *testing.T) (*httptest.Server, *IdentityClient) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/users":
			// The store matches email exactly; return near-miss rows to
			// prove the client double-checks.
			_ = json.NewEncoder(w).Encode(map[string]any{
				"users": []map[string]any{
					{"id": "user-upper", "email": "User@Example.test"},
					{"id": "user-1", "email": "user@example.test", "user_metadata": map[string]any{"premium": true}},
				},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/admin/users/user-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":            "user-1",
				"email":         "user@example.test",
				"user_metadata": map[string]any{"premium": true},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/admin/users/user-1":
			var body struct {
				UserMetadata map[string]any `json:"user_metadata"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserMetadata == nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodDelete && r.URL.Path == "/admin/users/user-1":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewIdentityClient(server.URL, "service-key")
	if err != nil {
		t.Fatalf("NewIdentityClient error = %v", err)
	}
	return server, client
}

func TestGetUserByEmailExactMatch(t *testing.T) {
	_, client := newIdentityTestServer(t)

	user, err := client.GetUserByEmail(context.Background(), "user@example.test")
	if err != nil {
		t.Fatalf("GetUserByEmail error = %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("user id = %q, want user-1", user.ID)
	}
	if !user.Premium() {
		t.Fatalf("expected premium metadata")
	}
}

func TestGetUserByEmailCaseSensitive(t *testing.T) {
	_, client := newIdentityTestServer(t)

	// The uppercase variant exists, but only as a different account.
	user, err := client.GetUserByEmail(context.Background(), "User@Example.test")
	if err != nil {
		t.Fatalf("GetUserByEmail error = %v", err)
	}
	if user.ID != "user-upper" {
		t.Fatalf("user id = %q, want user-upper", user.ID)
	}
}

func TestGetUserByEmailNotFound(t *testing.T) {
	_, client := newIdentityTestServer(t)

	_, err := client.GetUserByEmail(context.Background(), "nobody@example.test")
	if !errors.Is(err, errIdentityUserNotFound) {
		t.Fatalf("expected errIdentityUserNotFound, got %v", err)
	}
}

func TestUpdateUserMetadata(t *testing.T) {
	_, client := newIdentityTestServer(t)

	err := client.UpdateUserMetadata(context.Background(), "user-1", map[string]any{"premium": true})
	if err != nil {
		t.Fatalf("UpdateUserMetadata error = %v", err)
	}
}

func TestDeleteUserNotFound(t *testing.T) {
	_, client := newIdentityTestServer(t)

	err := client.DeleteUser(context.Background(), "user-unknown")
	if !errors.Is(err, errIdentityUserNotFound) {
		t.Fatalf("expected errIdentityUserNotFound, got %v", err)
	}
}

func TestIdentityUserPremium(t *testing.T) {
	var nilUser *IdentityUser
	if nilUser.Premium() {
		t.Fatalf("nil user must not be premium")
	}
	u := &IdentityUser{UserMetadata: map[string]any{"premium": "yes"}}
	if u.Premium() {
		t.Fatalf("non-bool premium metadata must read as false")
	}
	u.UserMetadata["premium"] = true
	if !u.Premium() {
		t.Fatalf("expected premium true")
	}
}
