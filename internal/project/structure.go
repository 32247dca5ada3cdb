// Package project models a project's form hierarchy and the precomputed
// ref index used by answer validation and uniqueness checks.
package project

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

type InputType string

const (
	TypeText           InputType = "text"
	TypeTextarea       InputType = "textarea"
	TypeInteger        InputType = "integer"
	TypeDecimal        InputType = "decimal"
	TypePhone          InputType = "phone"
	TypeDate           InputType = "date"
	TypeTime           InputType = "time"
	TypeDropdown       InputType = "dropdown"
	TypeRadio          InputType = "radio"
	TypeCheckbox       InputType = "checkbox"
	TypeSearchSingle   InputType = "searchsingle"
	TypeSearchMultiple InputType = "searchmultiple"
	TypeBarcode        InputType = "barcode"
	TypeLocation       InputType = "location"
	TypePhoto          InputType = "photo"
	TypeAudio          InputType = "audio"
	TypeVideo          InputType = "video"
	TypeGroup          InputType = "group"
	TypeBranch         InputType = "branch"
	TypeReadme         InputType = "readme"
)

func (t InputType) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeInteger, TypeDecimal, TypePhone, TypeDate, TypeTime,
		TypeDropdown, TypeRadio, TypeCheckbox, TypeSearchSingle, TypeSearchMultiple, TypeBarcode,
		TypeLocation, TypePhoto, TypeAudio, TypeVideo, TypeGroup, TypeBranch, TypeReadme:
		return true
	}
	return false
}

// Uniqueness scopes an input's "answer must be unique" flag.
type Uniqueness string

const (
	UniqueNone      Uniqueness = "none"
	UniqueForm      Uniqueness = "form"
	UniqueHierarchy Uniqueness = "hierarchy"
)

// uniqueCapable lists the input types that accept a uniqueness flag.
var uniqueCapable = map[InputType]struct{}{
	TypeText:     {},
	TypeTextarea: {},
	TypeInteger:  {},
	TypeDecimal:  {},
	TypePhone:    {},
	TypeDate:     {},
	TypeTime:     {},
	TypeBarcode:  {},
}

type PossibleAnswer struct {
	AnswerRef string `yaml:"answer_ref" json:"answer_ref"`
	Answer    string `yaml:"answer" json:"answer"`
}

type Input struct {
	Ref             string           `yaml:"ref" json:"ref"`
	Type            InputType        `yaml:"type" json:"type"`
	Question        string           `yaml:"question" json:"question"`
	Required        bool             `yaml:"is_required" json:"is_required"`
	Title           bool             `yaml:"is_title" json:"is_title"`
	Uniqueness      Uniqueness       `yaml:"uniqueness" json:"uniqueness"`
	Min             *float64         `yaml:"min,omitempty" json:"min,omitempty"`
	Max             *float64         `yaml:"max,omitempty" json:"max,omitempty"`
	PossibleAnswers []PossibleAnswer `yaml:"possible_answers,omitempty" json:"possible_answers,omitempty"`
	Group           []Input          `yaml:"group,omitempty" json:"group,omitempty"`
	Branch          []Input          `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// Unique reports whether the input carries a uniqueness constraint.
func (i Input) Unique() bool {
	return i.Uniqueness == UniqueForm || i.Uniqueness == UniqueHierarchy
}

// AnswerLabel returns the display text of the option answerRef.
func (i Input) AnswerLabel(answerRef string) (string, bool) {
	for _, pa := range i.PossibleAnswers {
		if pa.AnswerRef == answerRef {
			return pa.Answer, true
		}
	}
	return "", false
}

func (i Input) HasPossibleAnswer(answerRef string) bool {
	_, ok := i.AnswerLabel(answerRef)
	return ok
}

type Form struct {
	Ref    string  `yaml:"ref" json:"ref"`
	Name   string  `yaml:"name" json:"name"`
	Inputs []Input `yaml:"inputs" json:"inputs"`
}

// Structure is the ordered form hierarchy of a project: forms[0] is the root
// form and every later form is a child of the one before it.
type Structure struct {
	Forms []Form `yaml:"forms" json:"forms"`
}

var ErrInvalidStructure = errors.New("invalid project structure")

// ParseStructure decodes a YAML or JSON structure definition.
func ParseStructure(data []byte) (Structure, error) {
	var s Structure
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Structure{}, fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}
	if len(s.Forms) == 0 {
		return Structure{}, fmt.Errorf("%w: no forms", ErrInvalidStructure)
	}
	return s, nil
}
