package upload

import (
	"epicollect/api/internal/identity"
	"epicollect/api/internal/rbac"
	"epicollect/api/internal/store"
)

// grant is the outcome of authorising an edit of an existing entry.
type grant struct {
	allowed bool
	// promote attaches the actor's user to an anonymous entry.
	promote bool
}

// authorizeEdit allows an edit when any of these holds:
//  1. the actor's role may edit any entry of the project;
//  2. the entry belongs to a user and the actor is that user;
//  3. the entry has no user and the actor uploads from the entry's device.
//
// An anonymous entry edited by an authenticated user from its own device is
// promoted to that user. Entries that already have a user keep it.
func authorizeEdit(actor identity.Actor, owner store.Entry) grant {
	sameDevice := actor.DeviceID != "" && actor.DeviceID == owner.DeviceID

	var g grant
	switch {
	case rbac.CanEditAnyEntry(actor.Role):
		g.allowed = true
	case owner.UserID != 0 && actor.UserID == owner.UserID && rbac.CanEditOwnEntry(actor.Role):
		g.allowed = true
	case owner.UserID == 0 && sameDevice:
		g.allowed = true
	}
	g.promote = g.allowed && owner.UserID == 0 && actor.Authenticated() && sameDevice
	return g
}

// canUpload gates every upload before any lookup.
func canUpload(actor identity.Actor, private bool) bool {
	if !rbac.Can(actor.Role, rbac.ActionUpload) {
		return false
	}
	return !private || actor.Role != rbac.RoleNone
}
