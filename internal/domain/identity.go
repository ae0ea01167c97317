package domain

// Identity is the authenticated (user, role) pair supplied by the auth
// collaborator. The core trusts it without re-verifying credentials.
type Identity struct {
	UserID int64
	Role   Role
}

// Actor returns the identity's user id as a transition actor reference.
func (id Identity) Actor() *int64 {
	v := id.UserID
	return &v
}
