package project

import (
	"encoding/json"
	"fmt"
)

type Access string

const (
	AccessPublic  Access = "public"
	AccessPrivate Access = "private"
)

// Project is a loaded project with its structure already indexed.
type Project struct {
	ID        int64
	Ref       string
	Slug      string
	Name      string
	Access    Access
	Structure Structure

	index *Index
}

func New(id int64, ref, slug, name string, access Access, structure Structure) (*Project, error) {
	idx, err := NewIndex(structure)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", slug, err)
	}
	if access != AccessPrivate {
		access = AccessPublic
	}
	return &Project{
		ID:        id,
		Ref:       ref,
		Slug:      slug,
		Name:      name,
		Access:    access,
		Structure: structure,
		index:     idx,
	}, nil
}

func (p *Project) Index() *Index {
	return p.index
}

func (p *Project) Private() bool {
	return p.Access == AccessPrivate
}

type record struct {
	ID        int64     `json:"id"`
	Ref       string    `json:"ref"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Access    Access    `json:"access"`
	Structure Structure `json:"structure"`
}

// MarshalJSON encodes the project for caching; the index is rebuilt on decode.
func (p *Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(record{
		ID:        p.ID,
		Ref:       p.Ref,
		Slug:      p.Slug,
		Name:      p.Name,
		Access:    p.Access,
		Structure: p.Structure,
	})
}

func Decode(data []byte) (*Project, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	return New(r.ID, r.Ref, r.Slug, r.Name, r.Access, r.Structure)
}
