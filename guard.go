package accounts

// Permits reports whether claims hold requiredRole. It is a pure check on the
// claim set; roles that were inactive at issue time are never in it.
func Permits(claims SessionClaims, requiredRole string) bool {
	return claims.HasRole(requiredRole)
}

// PermitsAny reports whether claims hold at least one of roles.
func PermitsAny(claims SessionClaims, roles ...string) bool {
	for _, r := range roles {
		if claims.HasRole(r) {
			return true
		}
	}
	return false
}
