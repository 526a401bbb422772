// Package identity authenticates callers of the governance API.
//
// It provides:
//   - TokenIssuer: issues and verifies HS256 caller tokens bound to an address
//   - RequireCaller: Gin middleware enforcing a Bearer caller token
//   - CallerFromCtx: retrieves the authenticated address inside a handler
package identity
