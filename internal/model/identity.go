package model

// Identity is the authenticated caller as asserted by the identity provider.
// UserID is opaque; Name and Phone are profile attributes copied onto the
// purchase record at creation.
type Identity struct {
	UserID string
	Name   string
	Phone  string
	Role   string
}
