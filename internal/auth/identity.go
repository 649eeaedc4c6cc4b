package auth

import "slices"

// Identity is the caller as seen by guards and handlers. The zero value is
// the anonymous caller.
type Identity struct {
	UserID      int64
	Username    string
	IsStaff     bool
	IsSuperuser bool
	Groups      []string
}

// Anonymous is the identity of a request without a valid token.
var Anonymous = Identity{}

// Authenticated reports whether the identity belongs to a user.
func (i Identity) Authenticated() bool {
	return i.UserID != 0
}

// IsElevated reports whether the user is superuser, staff, or a member of
// one of the elevated groups.
func (i Identity) IsElevated(elevatedGroups []string) bool {
	if !i.Authenticated() {
		return false
	}
	if i.IsStaff || i.IsSuperuser {
		return true
	}
	for _, g := range i.Groups {
		if slices.Contains(elevatedGroups, g) {
			return true
		}
	}
	return false
}
