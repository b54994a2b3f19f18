package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BearerInfo summarizes the claims of the API bearer token the operator
// pastes into the console. The console does not hold the backend's signing
// key, so the token is decoded without signature verification; it is used
// for display only, never for authorization decisions.
type BearerInfo struct {
	Subject   string         `json:"subject"`
	Issuer    string         `json:"issuer"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Status    Status         `json:"status"`
	Claims    map[string]any `json:"claims"`
}

// InspectBearer decodes a JWT bearer token without verifying its signature.
func InspectBearer(tokenString string) (*BearerInfo, error) {
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("decode bearer token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claim type")
	}

	info := &BearerInfo{Claims: claims}
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		info.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		caps := &Capabilities{ExpiresAt: exp.Time}
		info.Status = caps.Status()
	}
	return info, nil
}
