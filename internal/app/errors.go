package app

import (
	"errors"
	"fmt"
	"net/http"

	"epicollect/api/internal/auth"
	"epicollect/api/internal/entry"
	"epicollect/api/internal/upload"
)

const (
	codeUnauthenticated = "ec5_219"
	codeEntryMissing    = "ec5_69"
	codeRouteMissing    = "ec5_404"
)

// DomainError is a refusal raised outside the upload engine.
type DomainError struct {
	Status int
	Code   string
	Title  string
	Source string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Title)
}

func domainError(status int, code, title, source string) *DomainError {
	return &DomainError{Status: status, Code: code, Title: title, Source: source}
}

func unauthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, codeUnauthenticated, "Authentication failed.", "auth")
}

func entryMissing(uuid string) *DomainError {
	return domainError(http.StatusNotFound, codeEntryMissing, "Entry does not exist.", uuid)
}

func notMember() *DomainError {
	return domainError(http.StatusForbidden, upload.CodeNotMember, upload.Title(upload.CodeNotMember), "project")
}

type apiError struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

func mapError(err error) (int, apiError) {
	var rej *upload.Rejection
	if errors.As(err, &rej) {
		return rej.Status, apiError{Code: rej.Code, Title: rej.Title, Source: rej.Source}
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, apiError{Code: domainErr.Code, Title: domainErr.Title, Source: domainErr.Source}
	}
	var fieldErr *entry.FieldError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, apiError{Code: upload.CodeInvalidValue, Title: upload.Title(upload.CodeInvalidValue), Source: fieldErr.Field}
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		e := unauthenticated()
		return e.Status, apiError{Code: e.Code, Title: e.Title, Source: e.Source}
	}
	return http.StatusInternalServerError, apiError{Code: upload.CodeServerError, Title: upload.Title(upload.CodeServerError), Source: "server"}
}
