package entry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// FieldError reports a malformed payload field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Payload is the upload request body.
type Payload struct {
	Data Document `json:"data"`
}

func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&p); err != nil {
		var shape *json.UnmarshalTypeError
		if errors.As(err, &shape) {
			return Payload{}, &FieldError{Field: shape.Field, Reason: "wrong value type"}
		}
		if errors.Is(err, ErrAnswerShape) {
			return Payload{}, &FieldError{Field: "answers", Reason: err.Error()}
		}
		return Payload{}, &FieldError{Field: "data", Reason: err.Error()}
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Validate checks the envelope; answers are checked against the project
// structure by the upload engine.
func (p Payload) Validate() error {
	d := p.Data
	if _, err := uuid.Parse(d.ID); err != nil {
		return &FieldError{Field: "id", Reason: "must be a uuid"}
	}
	if d.Entry.EntryUUID != "" && d.Entry.EntryUUID != d.ID {
		return &FieldError{Field: "entry_uuid", Reason: "does not match id"}
	}
	if d.FormRef() == "" {
		return &FieldError{Field: "form", Reason: "form ref is required"}
	}
	if d.Branch() {
		if d.OwnerInputRef() == "" {
			return &FieldError{Field: "owner_input_ref", Reason: "is required for branch entries"}
		}
		if _, err := uuid.Parse(d.OwnerUUID()); err != nil {
			return &FieldError{Field: "owner_entry_uuid", Reason: "must be a uuid"}
		}
		if d.Relationships.Parent.Data != nil {
			return &FieldError{Field: "parent", Reason: "branch entries cannot have a parent"}
		}
	}
	if parent := d.Relationships.Parent.Data; parent != nil {
		if _, err := uuid.Parse(parent.ParentEntryUUID); err != nil {
			return &FieldError{Field: "parent_entry_uuid", Reason: "must be a uuid"}
		}
		if parent.ParentFormRef == "" {
			return &FieldError{Field: "parent_form_ref", Reason: "is required with a parent entry"}
		}
	}
	return nil
}
