// Package domain provides types shared by every domain package.
package domain

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is 1-based pagination as exposed to API callers.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into valid bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}
