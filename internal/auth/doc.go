// Package auth verifies operator bearer tokens (HS256 JWT) in front of the
// registry's mutating HTTP routes. Domain-level authorization such as signer
// membership stays in the service packages.
package auth
