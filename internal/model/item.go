// Package model defines the data structures used throughout the application.
package model

import "time"

// ItemStatus is where an item sits in the household workflow.
// Every transition is an explicit update; nothing moves on its own.
type ItemStatus string

const (
	StatusPending     ItemStatus = "pending"
	StatusCompleted   ItemStatus = "completed"
	StatusFutureNeeds ItemStatus = "future-needs"
)

// Valid reports whether s is one of the three known statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFutureNeeds:
		return true
	}
	return false
}

// Item is one tracked household thing, always scoped to a single owner.
//
// Category holds a normalized category key or "" when uncategorized.
// Quantity 0 means "not specified".
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      ItemStatus `json:"status"`
	Quantity    int        `json:"quantity"`
	OwnerRef    string     `json:"ownerRef"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ItemDraft carries the caller-supplied fields of a new item.
type ItemDraft struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      ItemStatus `json:"status"`
	Quantity    int        `json:"quantity"`
}

// ItemPatch lists replaceable fields. A nil pointer leaves the field alone.
type ItemPatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Category    *string     `json:"category,omitempty"`
	Status      *ItemStatus `json:"status,omitempty"`
	Quantity    *int        `json:"quantity,omitempty"`
}

// FilterAll matches every category or status in an ItemQuery.
const FilterAll = "all"

// ItemQuery filters are ANDed together. Empty Category or Status behaves
// like FilterAll.
type ItemQuery struct {
	Text     string
	Category string
	Status   string
}
