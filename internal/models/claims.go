package models

import "github.com/golang-jwt/jwt/v5"

// ActorRole distinguishes admin callers from students on protected routes.
type ActorRole string

const (
	RoleAdmin   ActorRole = "ADMIN"
	RoleStudent ActorRole = "STUDENT"
)

// JWTClaims is the identity payload issued by the upstream auth system.
// This service only validates and reads it.
type JWTClaims struct {
	ActorID string    `json:"actor_id"`
	Role    ActorRole `json:"role"`
	jwt.RegisteredClaims
}
