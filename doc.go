// Package accounts implements the account and session core of a user, role
// and worker administration backend.
//
// Principals:
//   - A Principal is either an owner (top-level account) or a worker (a
//     subordinate account created by exactly one owner). Both kinds share the
//     principals table so username and email stay unique across kinds.
//   - AccountLifecycle owns every state change: registration, verification,
//     soft delete, restore, hard delete and the per-owner recycle bin. State
//     changes are conditional updates inside a single transaction.
//
// Sessions:
//   - Authenticator checks credentials and builds SessionClaims from the
//     principal's effective roles (active and not deleted).
//   - TokenIssuer signs short lived HS256 access tokens. RefreshTokenManager
//     keeps at most one opaque refresh token per identity and rotates it in
//     place.
//   - Sessions composes both into the login, refresh and logout flows.
//
// Activity sinks and notifiers are best-effort: failures are logged and never
// abort the operation that produced them.
package accounts
