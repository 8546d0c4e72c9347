package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"folio/api/internal/auth"
	"folio/api/internal/preview"
	"folio/api/internal/schema"
	"folio/api/internal/section"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Content does not match its component schema", map[string]any{
			"componentType": validationErr.ComponentType,
			"reason":        validationErr.Reason,
			"fieldPath":     validationErr.FieldPath,
		}
	}
	switch {
	case errors.Is(err, preview.ErrInvalidTTL):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid preview lifetime", map[string]any{
			"reason":    err.Error(),
			"fieldPath": "ttlHours",
		}
	case errors.Is(err, section.ErrNotFound), errors.Is(err, section.ErrPageNotFound), errors.Is(err, preview.ErrTokenNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, preview.ErrScopeNotFound):
		return http.StatusNotFound, "SCOPE_NOT_FOUND", "Page or section not found", nil
	case errors.Is(err, section.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Section was modified concurrently; reload and retry", nil
	case errors.Is(err, preview.ErrTokenExpired):
		return http.StatusGone, "PREVIEW_EXPIRED", "Preview link has expired", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	var repoErr *section.RepositoryError
	if errors.As(err, &repoErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable, "REPOSITORY_ERROR", "Storage temporarily unavailable; retry", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
