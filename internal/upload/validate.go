package upload

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"epicollect/api/internal/entry"
	"epicollect/api/internal/project"
)

const (
	maxTextLength     = 255
	maxTextareaLength = 1000
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// prepare checks placement and answers against the project structure and
// returns the answers typed by input, plus the ordered input scope of the
// entry.
func prepare(p *project.Project, d entry.Document) (entry.Answers, []project.InputDef, *Rejection) {
	idx := p.Index()
	formRef := d.FormRef()
	if !idx.HasForm(formRef) {
		return nil, nil, invalid("form")
	}

	branchRef := ""
	if d.Branch() {
		branchRef = d.OwnerInputRef()
		if !idx.IsBranch(formRef, branchRef) {
			return nil, nil, invalid("owner_input_ref")
		}
	} else {
		parentForm := idx.ParentForm(formRef)
		parent := d.Relationships.Parent.Data
		switch {
		case parentForm == "" && parent != nil:
			return nil, nil, invalid("parent")
		case parentForm != "" && parent == nil:
			return nil, nil, reject(http.StatusBadRequest, CodeMissingParent, "parent")
		case parentForm != "" && parent.ParentFormRef != parentForm:
			return nil, nil, invalid("parent_form_ref")
		}
	}

	typed := make(entry.Answers, len(d.Entry.Answers))
	for _, ref := range slices.Sorted(maps.Keys(d.Entry.Answers)) {
		def, ok := idx.Lookup(ref)
		if !ok || !idx.InScope(ref, formRef, branchRef) {
			return nil, nil, reject(http.StatusBadRequest, CodeUnknownInput, ref)
		}
		a, err := d.Entry.Answers[ref].As(def.Type)
		if err != nil {
			return nil, nil, invalid(ref)
		}
		if !valueValid(def, a) {
			return nil, nil, invalid(ref)
		}
		typed[ref] = canonical(def, a)
	}

	scope := idx.Scope(formRef, branchRef)
	for _, def := range scope {
		if !def.Required {
			continue
		}
		if a, ok := typed[def.Ref]; ok && !a.WasJumped && a.Empty() {
			return nil, nil, reject(http.StatusBadRequest, CodeRequired, def.Ref)
		}
	}
	return typed, scope, nil
}

func valueValid(def project.InputDef, a entry.Answer) bool {
	if a.Empty() {
		return true
	}
	switch def.Type {
	case project.TypeText, project.TypePhone, project.TypeBarcode:
		return utf8.RuneCountInString(a.Value) <= maxTextLength
	case project.TypeTextarea:
		return utf8.RuneCountInString(a.Value) <= maxTextareaLength
	case project.TypeInteger:
		n, err := strconv.ParseInt(a.Value, 10, 64)
		return err == nil && inRange(def, float64(n))
	case project.TypeDecimal:
		f, err := strconv.ParseFloat(a.Value, 64)
		return err == nil && inRange(def, f)
	case project.TypeDate, project.TypeTime:
		return parseTime(a.Value) != nil
	case project.TypeDropdown, project.TypeRadio, project.TypeSearchSingle:
		return def.HasPossibleAnswer(a.Value)
	case project.TypeCheckbox, project.TypeSearchMultiple:
		seen := make(map[string]struct{}, len(a.Values))
		for _, v := range a.Values {
			if _, dup := seen[v]; dup || !def.HasPossibleAnswer(v) {
				return false
			}
			seen[v] = struct{}{}
		}
		return true
	case project.TypeLocation:
		l := a.Location
		return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180 && l.Accuracy >= 0
	case project.TypePhoto, project.TypeAudio, project.TypeVideo:
		return !strings.ContainsAny(a.Value, `/\`) && !strings.Contains(a.Value, "..")
	case project.TypeGroup, project.TypeBranch, project.TypeReadme:
		return false
	}
	return true
}

// canonical rewrites a valid numeric answer in its shortest form, so "007"
// and 7 are the same value for uniqueness.
func canonical(def project.InputDef, a entry.Answer) entry.Answer {
	if a.Empty() {
		return a
	}
	switch def.Type {
	case project.TypeInteger:
		if n, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
			a.Value = strconv.FormatInt(n, 10)
		}
	case project.TypeDecimal:
		if f, err := strconv.ParseFloat(a.Value, 64); err == nil {
			a.Value = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return a
}

func inRange(def project.InputDef, v float64) bool {
	if def.Min != nil && v < *def.Min {
		return false
	}
	if def.Max != nil && v > *def.Max {
		return false
	}
	return true
}

func parseTime(value string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
