package guard

import (
	"net/http"
	"strings"
)

const msgNoPermission = "You do not have permission to perform this action."

// Role lets unsafe methods on protected paths through only for elevated users.
type Role struct {
	prefixes []string
	elevated []string
}

// NewRole creates the stage.
func NewRole(protectedPrefixes, elevatedGroups []string) *Role {
	return &Role{prefixes: protectedPrefixes, elevated: elevatedGroups}
}

// Name implements Stage.
func (r *Role) Name() string { return "role" }

// Check implements Stage.
func (r *Role) Check(req *Request) *Rejection {
	if !r.protects(req.Path) {
		return nil
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	if req.User.IsElevated(r.elevated) {
		return nil
	}
	return forbidden(msgNoPermission, true)
}

func (r *Role) protects(path string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
