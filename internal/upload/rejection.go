package upload

import (
	"fmt"
	"net/http"
)

const (
	CodeAccepted       = "ec5_237"
	CodeUnauthorised   = "ec5_54"
	CodeNotUnique      = "ec5_22"
	CodeInvalidValue   = "ec5_29"
	CodeRequired       = "ec5_21"
	CodeUnknownInput   = "ec5_15"
	CodeMissingParent  = "ec5_49"
	CodeNotMember      = "ec5_71"
	CodeProjectMissing = "ec5_11"
	CodeServerError    = "ec5_103"
)

var titles = map[string]string{
	CodeAccepted:       "Entry successfully uploaded.",
	CodeUnauthorised:   "User not authorised to edit this entry.",
	CodeNotUnique:      "Answer is not unique.",
	CodeInvalidValue:   "Value invalid.",
	CodeRequired:       "Required field is missing.",
	CodeUnknownInput:   "Input does not exist.",
	CodeMissingParent:  "Parent entry does not exist.",
	CodeNotMember:      "User does not have permission to upload to this project.",
	CodeProjectMissing: "Project does not exist.",
	CodeServerError:    "Server error.",
}

// Title returns the human title of a result code.
func Title(code string) string {
	return titles[code]
}

// Rejection is a refused upload. Nothing has been written when one is
// returned.
type Rejection struct {
	Status int
	Code   string
	Title  string
	Source string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s %s (source %s)", r.Code, r.Title, r.Source)
}

func reject(status int, code, source string) *Rejection {
	return &Rejection{Status: status, Code: code, Title: Title(code), Source: source}
}

func invalid(source string) *Rejection {
	return reject(http.StatusBadRequest, CodeInvalidValue, source)
}

func unauthorised() *Rejection {
	return reject(http.StatusForbidden, CodeUnauthorised, "upload")
}

func notUnique(ref string) *Rejection {
	return reject(http.StatusBadRequest, CodeNotUnique, ref)
}

// ProjectMissing is returned by callers that fail to resolve the project.
func ProjectMissing(slug string) *Rejection {
	return reject(http.StatusNotFound, CodeProjectMissing, slug)
}

// Invalid is a validation rejection for a malformed payload field.
func Invalid(source string) *Rejection {
	return invalid(source)
}
