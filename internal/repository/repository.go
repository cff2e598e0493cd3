// Package repository declares the persistence boundary. Business logic in
// internal/service depends only on these interfaces, so the medium behind
// them (SQLite today) can change without touching category or item rules.
package repository

import (
	"context"

	"github.com/sakif/home-manager/internal/model"
)

// Collection names of the record store.
const (
	CollectionCategories = "categories"
	CollectionItems      = "items"
)

// RecordStore persists the per-owner "categories" and "items" collections.
//
// Owner partitions are get-or-create: View and Update on an unknown owner
// create the partition (categories seeded with the store's defaults, no
// items) before proceeding. Every failure of the medium is reported as
// apperror.ErrStorageUnavailable.
type RecordStore interface {
	// View returns a snapshot of the owner's partition.
	View(ctx context.Context, owner string) (*model.Partition, error)

	// Update loads the owner's partition, hands it to fn, and persists the
	// mutated categories and items in one atomic unit. When fn returns an
	// error nothing is written and that error is returned unchanged.
	Update(ctx context.Context, owner string, fn func(p *model.Partition) error) error

	// Whole-collection access. Save replaces the entire collection; readers
	// never observe a partially written one.
	LoadCategories(ctx context.Context) ([]model.CategoryPartition, error)
	SaveCategories(ctx context.Context, data []model.CategoryPartition) error
	LoadItems(ctx context.Context) ([]model.ItemPartition, error)
	SaveItems(ctx context.Context, data []model.ItemPartition) error
}

// UserRepository stores registered accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertUserByEmail creates the user or refreshes the profile fields of
	// the existing one, keeping its ID and password hash.
	UpsertUserByEmail(ctx context.Context, user *model.User) error
}
