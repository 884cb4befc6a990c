package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by signed access tokens. Refresh tokens
// are opaque random strings and never carry claims.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	StudentID string `json:"student_id"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login, refresh, or recovery.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}
