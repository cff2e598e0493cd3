// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, normalizes, cascades
//	Repository (data layer)  → reads/writes the owner partitions
//
// Services accept plain values (owner, names, drafts) and return domain
// errors from internal/apperror; they know nothing about HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
)

// Normalize turns a raw category name into its key: trimmed, lower-cased,
// whitespace runs collapsed to a single hyphen. "  Home   Office " becomes
// "home-office". Returns "" for blank input.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "-")
}

// CategoryService owns each owner's category vocabulary. Rename and delete
// cascade into the owner's items in the same store transaction.
type CategoryService struct {
	store   repository.RecordStore
	locks   *ownerLocks
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCategoryService creates a CategoryService. It shares locks with the
// ItemService built from the same Locks value, so category cascades and
// item writes for one owner never interleave.
func NewCategoryService(store repository.RecordStore, locks *Locks, m *metrics.Metrics, logger *slog.Logger) *CategoryService {
	return &CategoryService{
		store:   store,
		locks:   locks.owners,
		metrics: m,
		logger:  logger,
	}
}

// List returns the owner's category keys in insertion order. An owner seen
// for the first time gets the configured defaults.
func (s *CategoryService) List(ctx context.Context, owner string) ([]string, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	p, err := s.store.View(ctx, owner)
	if err != nil {
		s.logger.Error("failed to list categories",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return p.Categories, nil
}

// Add normalizes rawName and appends it to the owner's categories. Adding a
// key that already exists is a no-op. Returns the resulting list.
func (s *CategoryService) Add(ctx context.Context, owner, rawName string) ([]string, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	key := Normalize(rawName)
	if key == "" {
		return nil, apperror.ValidationFailed("category", "category name is required")
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	var out []string
	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		if !slices.Contains(p.Categories, key) {
			p.Categories = append(p.Categories, key)
		}
		out = p.Categories
		return nil
	})
	if err != nil {
		s.logger.Error("failed to add category",
			slog.String("owner", owner),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding category: %w", err)
	}

	s.logger.Info("category added", slog.String("owner", owner), slog.String("key", key))
	return out, nil
}

// Rename replaces oldKey with the normalized newRawName and moves every
// item filed under oldKey to the new key.
//
// The list update is a map, not an insert: when oldKey is absent the list
// is unchanged but the item cascade still runs. If the new key already
// exists the two entries merge into one. A blank oldKey is rejected, since
// it would sweep every uncategorized item into the new key.
func (s *CategoryService) Rename(ctx context.Context, owner, oldKey, newRawName string) ([]string, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	if strings.TrimSpace(oldKey) == "" {
		return nil, apperror.ValidationFailed("category", "category key is required")
	}
	newKey := Normalize(newRawName)
	if newKey == "" {
		return nil, apperror.ValidationFailed("newCategory", "new category name is required")
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	var (
		out   []string
		moved int
	)
	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		renamed := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories {
			if c == oldKey {
				c = newKey
			}
			if !slices.Contains(renamed, c) {
				renamed = append(renamed, c)
			}
		}
		p.Categories = renamed
		moved = renameCategoryInItems(p, oldKey, newKey)
		out = p.Categories
		return nil
	})
	if err != nil {
		s.logger.Error("failed to rename category",
			slog.String("owner", owner),
			slog.String("from", oldKey),
			slog.String("to", newKey),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("renaming category: %w", err)
	}

	s.metrics.CascadedItems.WithLabelValues("rename").Add(float64(moved))
	s.logger.Info("category renamed",
		slog.String("owner", owner),
		slog.String("from", oldKey),
		slog.String("to", newKey),
		slog.Int("items", moved),
	)
	return out, nil
}

// Delete removes key from the owner's categories if present. Items filed
// under it become uncategorized; they are not deleted or reassigned.
func (s *CategoryService) Delete(ctx context.Context, owner, key string) ([]string, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	var (
		out     []string
		cleared int
	)
	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		kept := make([]string, 0, len(p.Categories))
		for _, c := range p.Categories {
			if c != key {
				kept = append(kept, c)
			}
		}
		p.Categories = kept
		cleared = clearCategoryInItems(p, key)
		out = p.Categories
		return nil
	})
	if err != nil {
		s.logger.Error("failed to delete category",
			slog.String("owner", owner),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("deleting category: %w", err)
	}

	s.metrics.CascadedItems.WithLabelValues("delete").Add(float64(cleared))
	s.logger.Info("category deleted",
		slog.String("owner", owner),
		slog.String("key", key),
		slog.Int("items", cleared),
	)
	return out, nil
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return apperror.Unauthorized("an authenticated owner is required")
	}
	return nil
}
