// Package identity resolves who is performing an upload.
package identity

import (
	"context"
	"fmt"
	"strings"

	"epicollect/api/internal/logging"
	"epicollect/api/internal/rbac"
)

// RoleStore looks up per-project role assignments.
type RoleStore interface {
	RoleFor(ctx context.Context, projectID, userID int64) (rbac.Role, error)
}

// Actor is the resolved identity of an upload. UserID 0 means no
// authenticated user; DeviceID "" means no device.
type Actor struct {
	UserID   int64
	DeviceID string
	Role     rbac.Role
}

func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// Identified reports whether the actor carries any identity that an edit can
// be authorised against.
func (a Actor) Identified() bool {
	return a.Authenticated() || a.DeviceID != ""
}

// Request carries the raw identity inputs of one upload.
type Request struct {
	UserID   int64
	DeviceID string
	Web      bool
}

type Resolver struct {
	roles RoleStore
	log   logging.Logger
}

func NewResolver(roles RoleStore, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{roles: roles, log: log}
}

// Resolve never fails for a missing identity; it only fails when the role
// lookup itself fails. Web uploads carry no device.
func (r *Resolver) Resolve(ctx context.Context, projectID int64, req Request) (Actor, error) {
	actor := Actor{Role: rbac.RoleNone}
	if !req.Web {
		actor.DeviceID = strings.TrimSpace(req.DeviceID)
	}
	if req.UserID <= 0 {
		return actor, nil
	}
	actor.UserID = req.UserID

	role, err := r.roles.RoleFor(ctx, projectID, req.UserID)
	if err != nil {
		return Actor{}, fmt.Errorf("resolve role of user %d in project %d: %w", req.UserID, projectID, err)
	}
	actor.Role = role
	r.log.Debug(ctx, "actor resolved", "project_id", projectID, "user_id", req.UserID, "role", string(role), "device", actor.DeviceID != "")
	return actor, nil
}
