// Package testhelpers provides shared fixtures for ekaya-query tests.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT builds an unsigned (alg: none) token accepted when
// verification is disabled.
func GenerateTestJWT(sub, tenantID string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub}
	if tenantID != "" {
		claims["tid"] = tenantID
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix for the Authorization header.
func GenerateTestJWTWithBearer(sub, tenantID string, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, tenantID, roles...)
}
