// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"strings"
	"time"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/domain"
)

// --- Pagination ---

// PageRequest contains 1-based pagination parameters.
type PageRequest struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ToPage converts the request into a normalized domain page.
func (p PageRequest) ToPage() domain.Page {
	return domain.Page{Page: p.Page, Limit: p.Limit}.Normalize()
}

// --- Responses ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Parsing helpers ---

func parseID(field, raw string) (id.ID, error) {
	v, err := id.Parse(strings.TrimSpace(raw))
	if err != nil {
		return id.ID{}, apperror.NewValidation(field + " must be a valid UUID").WithDetail(field, raw)
	}
	return v, nil
}

func parseOptionalID(field string, raw *string) (*id.ID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	v, err := parseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.NewValidation(field + " must be an RFC 3339 timestamp").WithDetail(field, raw)
	}
	return &t, nil
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
