package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the transport-agnostic claim set extracted from a verified
// bearer token. Role must equal "authenticated" for the token to be accepted;
// Entitlement drives the §4.9 paid-tier gating check.
type Claims struct {
	jwt.RegisteredClaims
	Role        string `json:"role"`
	Email       string `json:"email"`
	Entitlement string `json:"entitlement"`
}

// UserID returns the subject claim, used as the system's user_id throughout.
func (c Claims) UserID() string {
	return c.Subject
}

// HasEntitlement reports whether the claims grant the named entitlement,
// used by the start endpoint's model-tier gating check.
func (c Claims) HasEntitlement(name string) bool {
	return c.Entitlement == name
}
