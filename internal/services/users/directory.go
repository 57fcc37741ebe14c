// Package users resolves platform identities from the configured user list.
package users

import (
	"context"
	"strings"

	"github.com/vadiminshakov/remit/internal/domain"
)

// Directory is an immutable in-memory user registry.
type Directory struct {
	byID       map[string]domain.User
	byUsername map[string]domain.User
	admins     map[string]struct{}
}

// NewDirectory indexes users by id and case-insensitive username. Admin ids need not be listed users.
func NewDirectory(list []domain.User, adminIDs []string) (*Directory, error) {
	d := &Directory{
		byID:       make(map[string]domain.User, len(list)),
		byUsername: make(map[string]domain.User, len(list)),
		admins:     make(map[string]struct{}, len(adminIDs)),
	}

	for _, u := range list {
		if u.ID == "" {
			return nil, domain.ErrValidation.Newf("user %q has no id", u.Username)
		}
		if _, dup := d.byID[u.ID]; dup {
			return nil, domain.ErrValidation.Newf("duplicate user id %s", u.ID)
		}
		d.byID[u.ID] = u

		if u.Username == "" {
			continue
		}
		name := strings.ToLower(u.Username)
		if _, dup := d.byUsername[name]; dup {
			return nil, domain.ErrValidation.Newf("duplicate username %s", u.Username)
		}
		d.byUsername[name] = u
	}

	for _, id := range adminIDs {
		d.admins[id] = struct{}{}
	}
	return d, nil
}

// Resolve finds a user by id, then by username (with or without a leading @).
func (d *Directory) Resolve(_ context.Context, usernameOrID string) (domain.User, error) {
	key := strings.TrimSpace(usernameOrID)
	if u, ok := d.byID[key]; ok {
		return u, nil
	}
	if u, ok := d.byUsername[strings.ToLower(strings.TrimPrefix(key, "@"))]; ok {
		return u, nil
	}
	return domain.User{}, domain.ErrUserNotFound.Newf("user %q", usernameOrID)
}

// IsAdmin reports whether actorID may co-sign settlements and resolve disputes.
func (d *Directory) IsAdmin(actorID string) bool {
	_, ok := d.admins[actorID]
	return ok
}
