package domain

// UserID is the opaque identifier of an authenticated principal.
// It is the sole key of the connection registry.
type UserID string

func (id UserID) String() string {
	return string(id)
}
