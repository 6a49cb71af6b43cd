package auth

// Verifier validates bearer tokens and yields the authenticated principal.
// Authentication is an external collaborator; everything downstream depends
// on this interface only.
type Verifier interface {
	// VerifyToken validates a raw JWT and returns its claims.
	// Returns domain.ErrUnauthorized for any invalid token.
	VerifyToken(tokenString string) (*Claims, error)

	// Close releases verifier resources.
	Close() error
}
