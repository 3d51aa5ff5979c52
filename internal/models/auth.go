package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest holds credentials for issuing an access token.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse returns the issued token and staff info.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Staff       StaffInfo `json:"staff"`
	IssuedAt    time.Time `json:"issued_at"`
}

// StaffInfo describes the authenticated staff member in responses.
type StaffInfo struct {
	UID      string   `json:"uid"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	SchoolID string   `json:"school_id"`
	Roles    RoleList `json:"roles"`
}

// JWTClaims is the access-token payload. Claims are trusted as presented
// except for ClaimsVersion, which must match the staff row at validation
// time; the claims synchronizer bumps the stored version when roles or
// school change, invalidating older tokens.
type JWTClaims struct {
	UID           string   `json:"uid"`
	SchoolID      string   `json:"school_id"`
	Roles         RoleList `json:"roles"`
	ClaimsVersion int      `json:"claims_version"`
	jwt.RegisteredClaims
}

// ActingContext carries the authenticated actor and the effective identity
// for a single request. There is no ambient session: every service call
// receives the context explicitly. Under impersonation ActorID and AsUserID
// diverge, and audit entries record both.
type ActingContext struct {
	ActorID       string
	ActorRoles    RoleList
	SchoolID      string
	AsUserID      string
	AsRole        StaffRole
	Impersonating bool
}

// ActingAs builds the context for an actor operating as themselves.
func ActingAs(uid, schoolID string, roles RoleList) ActingContext {
	return ActingContext{
		ActorID:    uid,
		ActorRoles: roles,
		SchoolID:   schoolID,
		AsUserID:   uid,
		AsRole:     roles.Primary(),
	}
}

// Impersonate derives a context where the actor operates as the target
// staff member. Only admins may build one; callers enforce that.
func (a ActingContext) Impersonate(target *Staff) ActingContext {
	derived := a
	derived.AsUserID = target.UID
	derived.AsRole = target.Roles.Primary()
	derived.Impersonating = true
	return derived
}

// IsAdmin reports whether the real actor holds the admin role.
func (a ActingContext) IsAdmin() bool {
	return a.ActorRoles.Has(RoleAdmin)
}

// HasRole reports whether the real actor holds the given role.
func (a ActingContext) HasRole(role StaffRole) bool {
	return a.ActorRoles.Has(role)
}
