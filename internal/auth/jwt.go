package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJWTClaims returns the claims of a JWT. The signature is not checked;
// tokens come from the local credential store.
func ParseJWTClaims(token string) (map[string]any, error) {
	_, rest, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidJWT
	}
	payload, sig, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(sig, ".") {
		return nil, ErrInvalidJWT
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidJWT, err)
	}
	var claims map[string]any
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidJWT, err)
	}
	if claims == nil {
		return nil, ErrInvalidJWT
	}
	return claims, nil
}
