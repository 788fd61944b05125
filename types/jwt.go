package types

import "github.com/golang-jwt/jwt/v5"

// SupabaseClaims are the claims Supabase Auth writes into access tokens.
// Subject is the auth user id; Role is "authenticated" for users and "service_role" for the server key.
type SupabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}
