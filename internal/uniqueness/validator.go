// Package uniqueness enforces per-input "answer must be unique" flags against
// sibling entries.
package uniqueness

import (
	"context"
	"fmt"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/project"
)

// Query asks whether an entry other than ExcludeUUID already stores Value for
// InputRef. ScopeUUID narrows the search to entries sharing a parent (child
// forms) or an owner (branches); empty means the whole form.
type Query struct {
	ProjectID     int64
	Branch        bool
	FormRef       string
	OwnerInputRef string
	InputRef      string
	Value         string
	ExcludeUUID   string
	ScopeUUID     string
}

type Finder interface {
	HasDuplicate(ctx context.Context, q Query) (bool, error)
}

// Candidate is the entry being uploaded.
type Candidate struct {
	ProjectID     int64
	UUID          string
	FormRef       string
	Branch        bool
	OwnerInputRef string
	ScopeUUID     string
	Answers       entry.Answers
}

// Violation names the input whose answer collided.
type Violation struct {
	InputRef string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("answer for %s is not unique", v.InputRef)
}

type Validator struct {
	finder Finder
}

func New(finder Finder) *Validator {
	return &Validator{finder: finder}
}

// Check walks the scope in order and returns a *Violation for the first
// unique input whose answer already exists on another entry.
func (v *Validator) Check(ctx context.Context, scope []project.InputDef, c Candidate) error {
	for _, def := range scope {
		if !def.Unique() {
			continue
		}
		a, ok := c.Answers[def.Ref]
		if !ok || a.WasJumped || a.Empty() {
			continue
		}
		q := Query{
			ProjectID:     c.ProjectID,
			Branch:        c.Branch,
			FormRef:       c.FormRef,
			OwnerInputRef: c.OwnerInputRef,
			InputRef:      def.Ref,
			Value:         a.Value,
			ExcludeUUID:   c.UUID,
		}
		if def.Uniqueness == project.UniqueHierarchy {
			q.ScopeUUID = c.ScopeUUID
		}
		dup, err := v.finder.HasDuplicate(ctx, q)
		if err != nil {
			return fmt.Errorf("check uniqueness of %s: %w", def.Ref, err)
		}
		if dup {
			return &Violation{InputRef: def.Ref}
		}
	}
	return nil
}
