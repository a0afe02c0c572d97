package models

import "time"

// Profile is the user service's denormalized copy of an identity-service
// user. UserID is the identity service's key and is unique locally; the
// user service never reads the identity schema directly.
type Profile struct {
	UserID    string
	Email     string
	FullName  string
	Role      string
	Active    bool
	Verified  bool
	UpdatedAt time.Time
}
