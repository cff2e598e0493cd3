package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
)

// Validation limits for items.
const (
	MaxItemNameLength        = 200
	MaxItemDescriptionLength = 2000
)

// ItemService handles CRUD and queries over an owner's items.
//
// Item categories are normalized like category names but are not checked
// against the owner's live categories: filing an item under a category
// that doesn't exist yet is allowed.
type ItemService struct {
	store   repository.RecordStore
	locks   *ownerLocks
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewItemService creates an ItemService. Pass the same Locks given to the
// CategoryService.
func NewItemService(store repository.RecordStore, locks *Locks, m *metrics.Metrics, logger *slog.Logger) *ItemService {
	return &ItemService{
		store:   store,
		locks:   locks.owners,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns all of the owner's items, newest first.
func (s *ItemService) List(ctx context.Context, owner string) ([]model.Item, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	p, err := s.store.View(ctx, owner)
	if err != nil {
		s.logger.Error("failed to list items",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return p.Items, nil
}

// Get returns a single item. Returns apperror.ErrNotFound if the owner has
// no item with that id.
func (s *ItemService) Get(ctx context.Context, owner, id string) (*model.Item, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "item ID is required")
	}

	p, err := s.store.View(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	idx := indexOfItem(p.Items, id)
	if idx < 0 {
		return nil, apperror.NotFound("item", id)
	}
	it := p.Items[idx]
	return &it, nil
}

// Add validates draft and stores it as a new item with a fresh ID.
// Status defaults to pending.
func (s *ItemService) Add(ctx context.Context, owner string, draft model.ItemDraft) (*model.Item, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}

	now := s.now()
	item := model.Item{
		ID:          xid.New().String(),
		Name:        strings.TrimSpace(draft.Name),
		Description: strings.TrimSpace(draft.Description),
		Category:    Normalize(draft.Category),
		Status:      draft.Status,
		Quantity:    draft.Quantity,
		OwnerRef:    owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if item.Status == "" {
		item.Status = model.StatusPending
	}
	if err := validateItem(&item); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		p.Items = append(p.Items, item)
		return nil
	})
	if err != nil {
		s.logger.Error("failed to add item",
			slog.String("owner", owner),
			slog.String("name", item.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("adding item: %w", err)
	}

	s.metrics.ItemsWritten.WithLabelValues("add").Inc()
	s.logger.Info("item added",
		slog.String("owner", owner),
		slog.String("id", item.ID),
		slog.String("name", item.Name),
	)
	return &item, nil
}

// Update merges the non-nil fields of patch onto the item. ID, owner and
// creation time never change. Returns apperror.ErrNotFound, without
// writing anything, when the item doesn't exist.
func (s *ItemService) Update(ctx context.Context, owner, id string, patch model.ItemPatch) (*model.Item, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "item ID is required")
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	var updated model.Item
	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		idx := indexOfItem(p.Items, id)
		if idx < 0 {
			return apperror.NotFound("item", id)
		}

		it := p.Items[idx]
		applyPatch(&it, patch)
		if err := validateItem(&it); err != nil {
			return err
		}
		it.UpdatedAt = s.now()

		p.Items[idx] = it
		updated = it
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	s.metrics.ItemsWritten.WithLabelValues("update").Inc()
	s.logger.Info("item updated",
		slog.String("owner", owner),
		slog.String("id", id),
		slog.String("status", string(updated.Status)),
	)
	return &updated, nil
}

// Delete removes the item. Returns apperror.ErrNotFound if it doesn't exist.
func (s *ItemService) Delete(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "item ID is required")
	}

	unlock := s.locks.lock(owner)
	defer unlock()

	err := s.store.Update(ctx, owner, func(p *model.Partition) error {
		idx := indexOfItem(p.Items, id)
		if idx < 0 {
			return apperror.NotFound("item", id)
		}
		p.Items = append(p.Items[:idx], p.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}

	s.metrics.ItemsWritten.WithLabelValues("delete").Inc()
	s.logger.Info("item deleted", slog.String("owner", owner), slog.String("id", id))
	return nil
}

// Query returns the owner's items matching all of q's filters, newest first.
func (s *ItemService) Query(ctx context.Context, owner string, q model.ItemQuery) ([]model.Item, error) {
	items, err := s.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	return FilterItems(items, q), nil
}

// FilterItems applies q to items:
//   - Text: case-insensitive substring of the name; empty matches all
//   - Category: exact key; "all" or empty matches all
//   - Status: exact status; "all" or empty matches all
func FilterItems(items []model.Item, q model.ItemQuery) []model.Item {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if text != "" && !strings.Contains(strings.ToLower(it.Name), text) {
			continue
		}
		if !matchesFilter(q.Category, it.Category) {
			continue
		}
		if !matchesFilter(q.Status, string(it.Status)) {
			continue
		}
		out = append(out, it)
	}
	return out
}

func matchesFilter(filter, value string) bool {
	return filter == "" || filter == model.FilterAll || filter == value
}

// renameCategoryInItems moves every item filed under oldKey to newKey and
// reports how many moved.
func renameCategoryInItems(p *model.Partition, oldKey, newKey string) int {
	n := 0
	for i := range p.Items {
		if p.Items[i].Category == oldKey {
			p.Items[i].Category = newKey
			n++
		}
	}
	return n
}

// clearCategoryInItems uncategorizes every item filed under key and reports
// how many changed.
func clearCategoryInItems(p *model.Partition, key string) int {
	return renameCategoryInItems(p, key, "")
}

func applyPatch(it *model.Item, patch model.ItemPatch) {
	if patch.Name != nil {
		it.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		it.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Category != nil {
		it.Category = Normalize(*patch.Category)
	}
	if patch.Status != nil {
		it.Status = *patch.Status
	}
	if patch.Quantity != nil {
		it.Quantity = *patch.Quantity
	}
}

func validateItem(it *model.Item) error {
	if it.Name == "" {
		return apperror.ValidationFailed("name", "item name is required")
	}
	if len(it.Name) > MaxItemNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("item name must be %d characters or less", MaxItemNameLength))
	}
	if len(it.Description) > MaxItemDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxItemDescriptionLength))
	}
	if !it.Status.Valid() {
		return apperror.ValidationFailed("status",
			fmt.Sprintf("status must be one of %s, %s, %s",
				model.StatusPending, model.StatusCompleted, model.StatusFutureNeeds))
	}
	if it.Quantity < 0 {
		return apperror.ValidationFailed("quantity", "quantity cannot be negative")
	}
	return nil
}

func indexOfItem(items []model.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
