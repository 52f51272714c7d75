package identity_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/JaimeStill/labelhub/internal/config"
	"github.com/JaimeStill/labelhub/internal/identity"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want identity.Role
		ok   bool
	}{
		{"admin", identity.RoleAdmin, true},
		{" Publisher ", identity.RolePublisher, true},
		{"WORKER", identity.RoleWorker, true},
		{"guest", "", false},
	}

	for _, tt := range tests {
		got, ok := identity.ParseRole(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAuthorization(t *testing.T) {
	admin := identity.Actor{ID: "root", Role: identity.RoleAdmin}
	owner := identity.Actor{ID: "pub", Role: identity.RolePublisher}
	worker := identity.Actor{ID: "w1", Role: identity.RoleWorker}

	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"admin manages any task", admin.CanManage("pub"), true},
		{"owner manages own task", owner.CanManage("pub"), true},
		{"owner cannot manage other task", owner.CanManage("other"), false},
		{"worker cannot manage", worker.CanManage("pub"), false},
		{"worker undoes own result", worker.CanUndo("pub", "w1"), true},
		{"worker cannot undo others", worker.CanUndo("pub", "w2"), false},
		{"owner undoes any worker", owner.CanUndo("pub", "w2"), true},
		{"worker cannot publish", worker.CanPublish(), false},
		{"publisher can publish", owner.CanPublish(), true},
		{"empty id never owns", identity.Actor{}.CanManage(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestHeaderProvider(t *testing.T) {
	p := identity.NewHeader(identity.RoleWorker)

	tests := []struct {
		name    string
		id      string
		role    string
		want    identity.Actor
		wantErr bool
	}{
		{"default role", "w1", "", identity.Actor{ID: "w1", Role: identity.RoleWorker}, false},
		{"explicit role", "a1", "admin", identity.Actor{ID: "a1", Role: identity.RoleAdmin}, false},
		{"missing id", "", "admin", identity.Actor{}, true},
		{"unknown role", "x", "root", identity.Actor{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.id != "" {
				req.Header.Set(identity.HeaderActorID, tt.id)
			}
			if tt.role != "" {
				req.Header.Set(identity.HeaderActorRole, tt.role)
			}

			got, err := p.Resolve(req)
			if tt.wantErr {
				if !errors.Is(err, identity.ErrUnauthenticated) {
					t.Errorf("error = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("actor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewRefusesUntrustedProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.AuthConfig
		wantErr bool
	}{
		{"header without opt-in", config.AuthConfig{Provider: config.AuthProviderHeader, DefaultRole: "WORKER"}, true},
		{"header with opt-in", config.AuthConfig{Provider: config.AuthProviderHeader, DefaultRole: "WORKER", AllowHeader: true}, false},
		{"unknown provider", config.AuthConfig{Provider: "saml", DefaultRole: "WORKER"}, true},
		{"invalid default role", config.AuthConfig{Provider: config.AuthProviderHeader, DefaultRole: "OWNER", AllowHeader: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := identity.New(context.Background(), &tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen identity.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := identity.Middleware(identity.NewHeader(identity.RoleWorker), discard())(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.HeaderActorID, "w9")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seen.ID != "w9" || seen.Role != identity.RoleWorker {
		t.Errorf("actor in context = %+v", seen)
	}
}

const issuer = "https://idp.example.test"

func signToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()

	enc := base64.RawURLEncoding
	header, _ := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}

	signingInput := enc.EncodeToString(header) + "." + enc.EncodeToString(payload)
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	return signingInput + "." + enc.EncodeToString(sig)
}

func TestOIDCProvider(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: "labelhub"})
	p := identity.NewOIDC(verifier, "roles", identity.RoleWorker)

	now := time.Now()
	base := func(extra map[string]any) map[string]any {
		claims := map[string]any{
			"iss": issuer,
			"aud": "labelhub",
			"sub": "user-42",
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
		}
		for k, v := range extra {
			claims[k] = v
		}
		return claims
	}

	tests := []struct {
		name     string
		token    string
		wantRole identity.Role
		wantErr  bool
	}{
		{"role list picks highest", signToken(t, key, base(map[string]any{"roles": []string{"worker", "publisher"}})), identity.RolePublisher, false},
		{"missing claim uses default", signToken(t, key, base(nil)), identity.RoleWorker, false},
		{"wrong audience", signToken(t, key, base(map[string]any{"aud": "other"})), "", true},
		{"expired", signToken(t, key, base(map[string]any{"exp": now.Add(-time.Hour).Unix()})), "", true},
		{"no token", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background())
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}

			actor, err := p.Resolve(req)
			if tt.wantErr {
				if !errors.Is(err, identity.ErrUnauthenticated) {
					t.Errorf("error = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if actor.ID != "user-42" || actor.Role != tt.wantRole {
				t.Errorf("actor = %+v, want user-42/%s", actor, tt.wantRole)
			}
		})
	}
}
