package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
// The tenant filter is mandatory and carried separately on each store method;
// ListOptions only narrows within the tenant.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 1000).
	Limit int

	// SortBy specifies the field to sort by (e.g., "created_at", "importance_score").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// UserID filters to memories owned by a specific user within the tenant.
	// Empty string means no filter.
	UserID string

	// MemoryType filters memories by their classification value
	// (e.g. "preference", "decision"). Empty string means no filter.
	MemoryType string

	// CreatedAfter filters to rows created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time

	// CreatedBefore filters to rows created strictly before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// WithEmbeddings restricts results to memories that have an embedding.
	// Used by the clusterer, which cannot place unembedded memories.
	WithEmbeddings bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":       true,
		"updated_at":       true,
		"id":               true,
		"importance_score": true,
		"memory_type":      true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 50
	}

	if o.Limit > 1000 {
		o.Limit = 1000
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}
