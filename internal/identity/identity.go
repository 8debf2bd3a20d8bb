package identity

// AnonymousID is the owner recorded for work done without signing in.
const AnonymousID = "anonymous"

// Identity is the caller of an operation.
type Identity struct {
	ID            string `json:"uid"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Anonymous     bool   `json:"isAnonymous"`
	Authenticated bool   `json:"authenticated"`
}

// Unauthenticated is the identity of a caller without a token.
func Unauthenticated() Identity {
	return Identity{ID: AnonymousID}
}

// Owner is the id stored on records written by i.
func (i Identity) Owner() string {
	if !i.Authenticated {
		return AnonymousID
	}
	return i.ID
}
