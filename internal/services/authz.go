package services

import "strings"

// Authorizer decides whether user may change something owned by owner.
type Authorizer interface {
	CanWrite(user, owner string) bool
	IsAdmin(user string) bool
}

// AdminOrOwner grants writes to the configured admin, its built-in aliases
// and the owner of the record.
type AdminOrOwner struct {
	aliases map[string]struct{}
}

func NewAdminOrOwner(adminName string) AdminOrOwner {
	aliases := map[string]struct{}{
		"Administrator": {},
		"admin":         {},
	}
	if name := strings.TrimSpace(adminName); name != "" {
		aliases[name] = struct{}{}
	}
	return AdminOrOwner{aliases: aliases}
}

func (a AdminOrOwner) IsAdmin(user string) bool {
	_, ok := a.aliases[user]
	return ok
}

func (a AdminOrOwner) CanWrite(user, owner string) bool {
	if a.IsAdmin(user) {
		return true
	}
	return user != "" && user == owner
}
