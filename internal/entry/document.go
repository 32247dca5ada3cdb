package entry

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Type string

const (
	TypeEntry       Type = "entry"
	TypeBranchEntry Type = "branch_entry"
)

var ErrInvalidDocument = errors.New("invalid entry document")

type FormAttribute struct {
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

type Attributes struct {
	Form FormAttribute `json:"form"`
}

type ParentData struct {
	ParentFormRef   string `json:"parent_form_ref"`
	ParentEntryUUID string `json:"parent_entry_uuid"`
}

type BranchData struct {
	OwnerInputRef  string `json:"owner_input_ref"`
	OwnerEntryUUID string `json:"owner_entry_uuid"`
}

type ParentRelation struct {
	Data *ParentData `json:"data,omitempty"`
}

type BranchRelation struct {
	Data *BranchData `json:"data,omitempty"`
}

type Relationships struct {
	Parent ParentRelation `json:"parent"`
	Branch BranchRelation `json:"branch"`
}

// Body is the content under the "entry" or "branch_entry" key.
type Body struct {
	EntryUUID      string  `json:"entry_uuid"`
	CreatedAt      string  `json:"created_at"`
	DeviceID       string  `json:"device_id"`
	Platform       string  `json:"platform"`
	Title          string  `json:"title"`
	Answers        Answers `json:"answers"`
	ProjectVersion string  `json:"project_version"`
}

// Document is the canonical JSON document of an entry or branch entry. The
// body is written under the key named by Type.
type Document struct {
	Type          Type
	ID            string
	Attributes    Attributes
	Relationships Relationships
	Entry         Body
}

type documentWire struct {
	Type          Type          `json:"type"`
	ID            string        `json:"id"`
	Attributes    Attributes    `json:"attributes"`
	Relationships Relationships `json:"relationships"`
	Entry         *Body         `json:"entry,omitempty"`
	BranchEntry   *Body         `json:"branch_entry,omitempty"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	body := d.Entry
	if body.Answers == nil {
		body.Answers = Answers{}
	}
	wire := documentWire{
		Type:          d.Type,
		ID:            d.ID,
		Attributes:    d.Attributes,
		Relationships: d.Relationships,
	}
	switch d.Type {
	case TypeEntry:
		wire.Entry = &body
	case TypeBranchEntry:
		wire.BranchEntry = &body
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, d.Type)
	}
	return json.Marshal(wire)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var wire documentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var body *Body
	switch wire.Type {
	case TypeEntry:
		body = wire.Entry
	case TypeBranchEntry:
		body = wire.BranchEntry
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, wire.Type)
	}
	if body == nil {
		return fmt.Errorf("%w: missing %q object", ErrInvalidDocument, wire.Type)
	}
	if body.Answers == nil {
		body.Answers = Answers{}
	}
	*d = Document{
		Type:          wire.Type,
		ID:            wire.ID,
		Attributes:    wire.Attributes,
		Relationships: wire.Relationships,
		Entry:         *body,
	}
	return nil
}

func (d Document) Branch() bool {
	return d.Type == TypeBranchEntry
}

func (d Document) FormRef() string {
	return d.Attributes.Form.Ref
}

func (d Document) ParentUUID() string {
	if d.Relationships.Parent.Data == nil {
		return ""
	}
	return d.Relationships.Parent.Data.ParentEntryUUID
}

func (d Document) ParentFormRef() string {
	if d.Relationships.Parent.Data == nil {
		return ""
	}
	return d.Relationships.Parent.Data.ParentFormRef
}

func (d Document) OwnerUUID() string {
	if d.Relationships.Branch.Data == nil {
		return ""
	}
	return d.Relationships.Branch.Data.OwnerEntryUUID
}

func (d Document) OwnerInputRef() string {
	if d.Relationships.Branch.Data == nil {
		return ""
	}
	return d.Relationships.Branch.Data.OwnerInputRef
}

// Merge folds an accepted upload into the stored document. The envelope,
// title and project version come from incoming; created_at, device_id and
// platform stay as first stored. Answer maps are merged by ref.
func Merge(stored, incoming Document) Document {
	merged := incoming
	merged.Entry.Answers = stored.Entry.Answers.Merge(incoming.Entry.Answers)
	if stored.Entry.CreatedAt != "" {
		merged.Entry.CreatedAt = stored.Entry.CreatedAt
	}
	merged.Entry.DeviceID = stored.Entry.DeviceID
	merged.Entry.Platform = stored.Entry.Platform
	return merged
}
