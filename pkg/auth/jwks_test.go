package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testTenantID = "550e8400-e29b-41d4-a716-446655440000"

// createTestToken creates an unsigned token for dev mode.
func createTestToken(claims *Claims) string {
	headerJSON, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	claimsJSON, _ := json.Marshal(claims)
	return base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON) + "."
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	jwks := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)
	return server
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestJWKSClient_ValidateToken_DevMode(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	token := createTestToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-123"},
		TenantID:         testTenantID,
		Roles:            []string{"admin"},
	})

	claims, err := client.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected Subject 'user-123', got %q", claims.Subject)
	}
	if claims.TenantID != testTenantID {
		t.Errorf("expected TenantID %q, got %q", testTenantID, claims.TenantID)
	}
	if !claims.HasRole(RoleAdmin) {
		t.Errorf("expected admin role, got %v", claims.Roles)
	}
}

func TestJWKSClient_ValidateToken_DevModeRejectsGarbage(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	for _, token := range []string{"", "not-a-valid-token", "a.b.c"} {
		if _, err := client.ValidateToken(token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestJWKSClient_ValidateToken_Verified(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	server := newJWKSServer(t, key, "key-1")
	issuer := "https://auth.example.com"

	client, err := NewJWKSClient(&JWKSConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{issuer: server.URL},
	})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: testTenantID,
	}

	got, err := client.ValidateToken(signToken(t, key, "key-1", claims))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if got.TenantID != testTenantID {
		t.Errorf("expected TenantID %q, got %q", testTenantID, got.TenantID)
	}

	claims.Issuer = "https://evil.example.com"
	if _, err := client.ValidateToken(signToken(t, key, "key-1", claims)); err == nil {
		t.Error("expected unknown issuer to be rejected")
	}

	claims.Issuer = issuer
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	if _, err := client.ValidateToken(signToken(t, key, "key-1", claims)); err == nil {
		t.Error("expected expired token to be rejected")
	}

	claims.ExpiresAt = nil
	if _, err := client.ValidateToken(signToken(t, key, "key-1", claims)); err == nil {
		t.Error("expected token without expiry to be rejected")
	}

	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Second))
	if _, err := client.ValidateToken(signToken(t, key, "key-1", claims)); err != nil {
		t.Errorf("expected token within clock skew to be accepted: %v", err)
	}

	if _, err := client.ValidateToken(createTestToken(claims)); err == nil {
		t.Error("expected unsigned token to be rejected when verification is enabled")
	}
}
