package entry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Geo is the GeoJSON companion document: one Point feature per answered
// location input, keyed by input ref.
type Geo map[string]*geojson.Feature

// FeatureMeta is copied into every feature's properties.
type FeatureMeta struct {
	UUID      string
	Title     string
	CreatedAt string
}

// Apply regenerates the feature for ref from a location answer. An empty or
// jumped location removes the feature.
func (g Geo) Apply(ref string, a Answer, meta FeatureMeta) {
	if a.Kind != KindLocation {
		return
	}
	if a.Location == nil || a.WasJumped {
		delete(g, ref)
		return
	}
	f := geojson.NewFeature(orb.Point{a.Location.Longitude, a.Location.Latitude})
	f.ID = meta.UUID
	f.Properties["uuid"] = meta.UUID
	f.Properties["title"] = meta.Title
	f.Properties["accuracy"] = a.Location.Accuracy
	f.Properties["created_at"] = meta.CreatedAt
	g[ref] = f
}

// Retitle refreshes the title property of every feature.
func (g Geo) Retitle(title string) {
	for _, f := range g {
		if f == nil {
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties["title"] = title
	}
}

// Coordinates returns the [longitude, latitude] pair stored for ref.
func (g Geo) Coordinates(ref string) (orb.Point, bool) {
	f, ok := g[ref]
	if !ok || f == nil {
		return orb.Point{}, false
	}
	p, ok := f.Geometry.(orb.Point)
	return p, ok
}

func (g Geo) Clone() Geo {
	out := make(Geo, len(g))
	for ref, f := range g {
		if f == nil {
			continue
		}
		cp := *f
		cp.Properties = f.Properties.Clone()
		out[ref] = &cp
	}
	return out
}

func (g Geo) Marshal() ([]byte, error) {
	if g == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]*geojson.Feature(g))
}

func DecodeGeo(data []byte) (Geo, error) {
	g := Geo{}
	if len(data) == 0 || string(data) == "null" {
		return g, nil
	}
	if err := json.Unmarshal(data, (*map[string]*geojson.Feature)(&g)); err != nil {
		return nil, fmt.Errorf("decode geo document: %w", err)
	}
	for ref, f := range g {
		if f == nil || f.Geometry == nil {
			delete(g, ref)
		}
	}
	return g, nil
}
