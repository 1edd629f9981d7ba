package expense

// IdentityProvider yields the current user's opaque ID and the bearer
// credential used against the receipt-parsing service. Authentication itself
// is an external concern; this is the narrow surface the pipeline consumes.
type IdentityProvider interface {
	// CurrentUser returns the opaque ID of the authenticated user
	CurrentUser() (string, error)

	// Token returns the bearer credential, empty if anonymous
	Token() string
}

// StaticIdentity is an IdentityProvider with fixed credentials, used by the
// CLI and by tests.
type StaticIdentity struct {
	UserID      string
	BearerToken string
}

func (s *StaticIdentity) CurrentUser() (string, error) {
	return s.UserID, nil
}

func (s *StaticIdentity) Token() string {
	return s.BearerToken
}
