// Package entry holds the answer model and the stored entry document:
// typed answers keyed by input ref, the JSON envelope written to storage and
// its GeoJSON companion.
package entry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"

	"epicollect/api/internal/project"
)

// Kind discriminates the shape of an answer value.
type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindMulti
	KindLocation
	KindMedia
	KindStructural
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMulti:
		return "multi"
	case KindLocation:
		return "location"
	case KindMedia:
		return "media"
	case KindStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// KindOf maps an input type to the answer shape it accepts.
func KindOf(t project.InputType) Kind {
	switch t {
	case project.TypeCheckbox, project.TypeSearchMultiple:
		return KindMulti
	case project.TypeLocation:
		return KindLocation
	case project.TypePhoto, project.TypeAudio, project.TypeVideo:
		return KindMedia
	case project.TypeGroup, project.TypeBranch, project.TypeReadme:
		return KindStructural
	default:
		return KindScalar
	}
}

var ErrAnswerShape = errors.New("answer shape does not match input type")

type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Answer is one question's answer. Value carries scalar, media and structural
// answers, Values carries multi-value answers and Location carries a location
// answer (nil when the location was left empty).
type Answer struct {
	Kind      Kind
	Value     string
	Number    bool
	Values    []string
	Location  *Location
	WasJumped bool
}

func Text(value string) Answer {
	return Answer{Kind: KindScalar, Value: norm.NFC.String(value)}
}

func Multi(values ...string) Answer {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = norm.NFC.String(v)
	}
	return Answer{Kind: KindMulti, Values: out}
}

func Point(latitude, longitude, accuracy float64) Answer {
	return Answer{Kind: KindLocation, Location: &Location{Latitude: latitude, Longitude: longitude, Accuracy: accuracy}}
}

func Jumped(kind Kind) Answer {
	return Answer{Kind: kind, WasJumped: true}
}

// As reinterprets a decoded answer for an input of type t. Empty answers are
// accepted for every type.
func (a Answer) As(t project.InputType) (Answer, error) {
	want := KindOf(t)
	if a.Kind == want {
		return a, nil
	}
	if a.Kind == KindScalar {
		switch want {
		case KindMedia, KindStructural:
			a.Kind = want
			return a, nil
		case KindMulti, KindLocation:
			if a.Value == "" && !a.Number {
				a.Kind = want
				a.Value = ""
				return a, nil
			}
		}
	}
	return Answer{}, fmt.Errorf("%w: %s answer for %s input", ErrAnswerShape, a.Kind, t)
}

// Empty reports whether the answer carries no value.
func (a Answer) Empty() bool {
	switch a.Kind {
	case KindMulti:
		return len(a.Values) == 0
	case KindLocation:
		return a.Location == nil
	default:
		return a.Value == ""
	}
}

// shape folds kinds that share a JSON representation.
func (a Answer) shape() Kind {
	switch a.Kind {
	case KindMedia, KindStructural, 0:
		return KindScalar
	}
	return a.Kind
}

// Equal is deep structural equality of the {answer, was_jumped} shape.
func (a Answer) Equal(b Answer) bool {
	if a.shape() != b.shape() || a.WasJumped != b.WasJumped {
		return false
	}
	switch a.shape() {
	case KindMulti:
		return slices.Equal(a.Values, b.Values)
	case KindLocation:
		if a.Location == nil || b.Location == nil {
			return a.Location == nil && b.Location == nil
		}
		return *a.Location == *b.Location
	default:
		return a.Value == b.Value && a.Number == b.Number
	}
}

type locationWire struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

type emptyLocationWire struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Accuracy  string `json:"accuracy"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	wire := struct {
		Answer    any  `json:"answer"`
		WasJumped bool `json:"was_jumped"`
	}{WasJumped: a.WasJumped}

	switch a.shape() {
	case KindMulti:
		values := a.Values
		if values == nil {
			values = []string{}
		}
		wire.Answer = values
	case KindLocation:
		if a.Location == nil {
			wire.Answer = emptyLocationWire{}
		} else {
			wire.Answer = locationWire{
				Latitude:  a.Location.Latitude,
				Longitude: a.Location.Longitude,
				Accuracy:  a.Location.Accuracy,
			}
		}
	default:
		if a.Number {
			wire.Answer = json.Number(a.Value)
		} else {
			wire.Answer = a.Value
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON infers the answer shape from the JSON value. Text is
// normalised to NFC so equal answers compare equal byte for byte.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var wire struct {
		Answer    json.RawMessage `json:"answer"`
		WasJumped bool            `json:"was_jumped"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	decoded, err := decodeValue(wire.Answer)
	if err != nil {
		return err
	}
	decoded.WasJumped = wire.WasJumped
	*a = decoded
	return nil
}

func decodeValue(raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{Kind: KindScalar}, nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return Answer{}, err
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			v, _, ok := scalarText(item)
			if !ok {
				return Answer{}, fmt.Errorf("%w: list items must be strings or numbers", ErrAnswerShape)
			}
			values = append(values, v)
		}
		return Answer{Kind: KindMulti, Values: values}, nil
	case '{':
		return decodeLocation(raw)
	default:
		v, number, ok := scalarText(raw)
		if !ok {
			return Answer{}, fmt.Errorf("%w: unsupported answer value %s", ErrAnswerShape, raw)
		}
		return Answer{Kind: KindScalar, Value: v, Number: number}, nil
	}
}

func scalarText(raw json.RawMessage) (value string, number bool, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, false
		}
		return norm.NFC.String(s), false, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false, false
	}
	return n.String(), true, true
}

func decodeLocation(raw json.RawMessage) (Answer, error) {
	var wire struct {
		Latitude  json.RawMessage `json:"latitude"`
		Longitude json.RawMessage `json:"longitude"`
		Accuracy  json.RawMessage `json:"accuracy"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Answer{}, err
	}
	lat, latSet, err := coordinate(wire.Latitude)
	if err != nil {
		return Answer{}, fmt.Errorf("latitude: %w", err)
	}
	lon, lonSet, err := coordinate(wire.Longitude)
	if err != nil {
		return Answer{}, fmt.Errorf("longitude: %w", err)
	}
	acc, _, err := coordinate(wire.Accuracy)
	if err != nil {
		return Answer{}, fmt.Errorf("accuracy: %w", err)
	}
	if !latSet && !lonSet {
		return Answer{Kind: KindLocation}, nil
	}
	if latSet != lonSet {
		return Answer{}, fmt.Errorf("%w: location needs both latitude and longitude", ErrAnswerShape)
	}
	return Answer{Kind: KindLocation, Location: &Location{Latitude: lat, Longitude: lon, Accuracy: acc}}, nil
}

// coordinate accepts a number, a numeric string or the empty string.
func coordinate(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	v, _, ok := scalarText(raw)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s is not a coordinate", ErrAnswerShape, raw)
	}
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q is not a coordinate", ErrAnswerShape, v)
	}
	return f, true, nil
}

// Answers maps input refs to answers. Group members live in the same
// namespace as top-level inputs.
type Answers map[string]Answer

// Merge returns a new map: a overwritten by every ref present in incoming.
func (a Answers) Merge(incoming Answers) Answers {
	out := make(Answers, len(a)+len(incoming))
	for ref, ans := range a {
		out[ref] = ans
	}
	for ref, ans := range incoming {
		out[ref] = ans
	}
	return out
}

func (a Answers) Equal(b Answers) bool {
	if len(a) != len(b) {
		return false
	}
	for ref, ans := range a {
		other, ok := b[ref]
		if !ok || !ans.Equal(other) {
			return false
		}
	}
	return true
}
