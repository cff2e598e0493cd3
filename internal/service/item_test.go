package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/model"
)

// =========================================================================
// ADD
// =========================================================================

func TestItemAdd_Defaults(t *testing.T) {
	_, items, _ := newTestServices(t)

	it, err := items.Add(context.Background(), "a@x.com", model.ItemDraft{
		Name:     "  Dish Soap ",
		Category: "Kitchen Stuff",
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if it.ID == "" {
		t.Error("Add() did not assign an ID")
	}
	if it.Name != "Dish Soap" {
		t.Errorf("Name = %q, want trimmed %q", it.Name, "Dish Soap")
	}
	if it.Category != "kitchen-stuff" {
		t.Errorf("Category = %q, want %q", it.Category, "kitchen-stuff")
	}
	if it.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", it.Status, model.StatusPending)
	}
	if it.OwnerRef != "a@x.com" {
		t.Errorf("OwnerRef = %q, want %q", it.OwnerRef, "a@x.com")
	}
}

func TestItemAdd_UnknownCategoryAllowed(t *testing.T) {
	cats, items, _ := newTestServices(t)
	ctx := context.Background()

	it, err := items.Add(ctx, "a@x.com", model.ItemDraft{Name: "Rake", Category: "Garden Shed"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if it.Category != "garden-shed" {
		t.Errorf("Category = %q, want %q", it.Category, "garden-shed")
	}

	// The item does not create the category.
	list, _ := cats.List(ctx, "a@x.com")
	for _, c := range list {
		if c == "garden-shed" {
			t.Errorf("Add() created category %q", c)
		}
	}
}

func TestItemAdd_UniqueIDs(t *testing.T) {
	_, items, _ := newTestServices(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		it := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "thing"})
		if seen[it.ID] {
			t.Fatalf("duplicate ID %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestItemAdd_EmptyNameDoesNotWrite(t *testing.T) {
	_, items, db := newTestServices(t)
	ctx := context.Background()

	for _, name := range []string{"", "   "} {
		_, err := items.Add(ctx, "a@x.com", model.ItemDraft{Name: name, Category: "grocery"})
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Add(%q) error = %v, want ErrValidation", name, err)
		}
	}

	parts, err := db.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems() error = %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("storage mutated: %+v", parts)
	}
}

func TestItemAdd_Validation(t *testing.T) {
	_, items, _ := newTestServices(t)

	tests := []struct {
		name  string
		draft model.ItemDraft
		field string
	}{
		{"bad status", model.ItemDraft{Name: "x", Status: "done"}, "status"},
		{"negative quantity", model.ItemDraft{Name: "x", Quantity: -1}, "quantity"},
		{"long name", model.ItemDraft{Name: strings.Repeat("a", MaxItemNameLength+1)}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := items.Add(context.Background(), "a@x.com", tt.draft)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Add() error = %v, want ErrValidation", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

// =========================================================================
// LIST / GET
// =========================================================================

func TestItemList_NewestFirst(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()

	mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "first"})
	mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "second"})
	mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "third"})

	got, err := items.List(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 || got[0].Name != "third" || got[2].Name != "first" {
		t.Errorf("List() order = %v", names(got))
	}
}

func TestItemList_NewOwnerIsEmpty(t *testing.T) {
	_, items, _ := newTestServices(t)

	got, err := items.List(context.Background(), "fresh@x.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %#v, want empty non-nil slice", got)
	}
}

func TestItemGet_OtherOwnerIsNotFound(t *testing.T) {
	_, items, _ := newTestServices(t)
	it := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "Soap"})

	_, err := items.Get(context.Background(), "b@x.com", it.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// UPDATE
// =========================================================================

func TestItemUpdate_RoundTrip(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()
	owner := "a@x.com"

	orig := mustAddItem(t, items, owner, model.ItemDraft{Name: "Soap", Category: "bathroom"})

	listed, _ := items.List(ctx, owner)
	if len(listed) != 1 || listed[0].ID != orig.ID {
		t.Fatalf("List() after add = %+v", listed)
	}

	patch := model.ItemPatch{
		Name:        ptr("Hand Soap"),
		Description: ptr("lavender refill"),
		Category:    ptr("Guest Bath"),
		Status:      ptr(model.StatusCompleted),
		Quantity:    ptr(2),
	}
	updated, err := items.Update(ctx, owner, orig.ID, patch)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.ID != orig.ID {
		t.Errorf("ID changed: %q -> %q", orig.ID, updated.ID)
	}

	listed, _ = items.List(ctx, owner)
	if len(listed) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(listed))
	}
	got := listed[0]
	if got.ID != orig.ID ||
		got.Name != "Hand Soap" ||
		got.Description != "lavender refill" ||
		got.Category != "guest-bath" ||
		got.Status != model.StatusCompleted ||
		got.Quantity != 2 {
		t.Errorf("after update = %+v", got)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", orig.CreatedAt, got.CreatedAt)
	}
}

func TestItemUpdate_PartialPatchKeepsOtherFields(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()

	orig := mustAddItem(t, items, "a@x.com", model.ItemDraft{
		Name: "Rice", Description: "basmati", Category: "grocery",
	})

	updated, err := items.Update(ctx, "a@x.com", orig.ID, model.ItemPatch{Status: ptr(model.StatusFutureNeeds)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "Rice" || updated.Description != "basmati" || updated.Category != "grocery" {
		t.Errorf("unpatched fields changed: %+v", updated)
	}
	if updated.Status != model.StatusFutureNeeds {
		t.Errorf("Status = %q, want %q", updated.Status, model.StatusFutureNeeds)
	}
}

func TestItemUpdate_StatusTransitions(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()
	it := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "Bulbs"})

	for _, next := range []model.ItemStatus{
		model.StatusFutureNeeds, model.StatusPending, model.StatusCompleted, model.StatusPending,
	} {
		got, err := items.Update(ctx, "a@x.com", it.ID, model.ItemPatch{Status: ptr(next)})
		if err != nil {
			t.Fatalf("Update(status=%s) error = %v", next, err)
		}
		if got.Status != next {
			t.Errorf("Status = %q, want %q", got.Status, next)
		}
	}
}

func TestItemUpdate_NotFoundDoesNotWrite(t *testing.T) {
	_, items, db := newTestServices(t)
	ctx := context.Background()
	existing := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "Soap"})

	before, _ := db.LoadItems(ctx)

	_, err := items.Update(ctx, "a@x.com", "does-not-exist", model.ItemPatch{Name: ptr("x")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}

	after, _ := db.LoadItems(ctx)
	if len(after) != len(before) || len(after[0].Items) != 1 || after[0].Items[0].Name != existing.Name {
		t.Errorf("storage mutated: before=%+v after=%+v", before, after)
	}
}

func TestItemUpdate_EmptyNameRejected(t *testing.T) {
	_, items, _ := newTestServices(t)
	it := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "Soap"})

	_, err := items.Update(context.Background(), "a@x.com", it.ID, model.ItemPatch{Name: ptr("  ")})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestItemDelete(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()
	keep := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "keep"})
	drop := mustAddItem(t, items, "a@x.com", model.ItemDraft{Name: "drop"})

	if err := items.Delete(ctx, "a@x.com", drop.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, _ := items.List(ctx, "a@x.com")
	if len(got) != 1 || got[0].ID != keep.ID {
		t.Errorf("List() after delete = %v", names(got))
	}

	err := items.Delete(ctx, "a@x.com", drop.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// QUERY
// =========================================================================

func TestItemQuery(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()
	owner := "a@x.com"

	mustAddItem(t, items, owner, model.ItemDraft{Name: "Hand Soap", Category: "bathroom"})
	mustAddItem(t, items, owner, model.ItemDraft{Name: "Dish SOAP", Category: "kitchen"})
	mustAddItem(t, items, owner, model.ItemDraft{Name: "Soap dispenser", Category: "bathroom", Status: model.StatusCompleted})
	mustAddItem(t, items, owner, model.ItemDraft{Name: "Sponge", Category: "kitchen"})
	mustAddItem(t, items, owner, model.ItemDraft{Name: "Bath mat", Category: "bathroom", Status: model.StatusFutureNeeds})

	tests := []struct {
		name string
		q    model.ItemQuery
		want []string
	}{
		{
			name: "soap, all categories, pending",
			q:    model.ItemQuery{Text: "soap", Category: "all", Status: "pending"},
			want: []string{"Dish SOAP", "Hand Soap"},
		},
		{
			name: "everything",
			q:    model.ItemQuery{Category: "all", Status: "all"},
			want: []string{"Bath mat", "Sponge", "Soap dispenser", "Dish SOAP", "Hand Soap"},
		},
		{
			name: "empty filters behave like all",
			q:    model.ItemQuery{},
			want: []string{"Bath mat", "Sponge", "Soap dispenser", "Dish SOAP", "Hand Soap"},
		},
		{
			name: "category only",
			q:    model.ItemQuery{Category: "kitchen", Status: "all"},
			want: []string{"Sponge", "Dish SOAP"},
		},
		{
			name: "status only",
			q:    model.ItemQuery{Category: "all", Status: "future-needs"},
			want: []string{"Bath mat"},
		},
		{
			name: "all three",
			q:    model.ItemQuery{Text: "SOAP", Category: "bathroom", Status: "completed"},
			want: []string{"Soap dispenser"},
		},
		{
			name: "no match",
			q:    model.ItemQuery{Text: "towel", Category: "all", Status: "all"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := items.Query(ctx, owner, tt.q)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if strings.Join(names(got), ",") != strings.Join(tt.want, ",") {
				t.Errorf("Query() = %v, want %v", names(got), tt.want)
			}
		})
	}
}

// =========================================================================
// CONCURRENCY / STORAGE
// =========================================================================

// TestItemAdd_ConcurrentWritesNotLost runs many adds for one owner at once;
// every one of them must survive.
func TestItemAdd_ConcurrentWritesNotLost(t *testing.T) {
	_, items, _ := newTestServices(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := items.Add(ctx, "a@x.com", model.ItemDraft{Name: "concurrent"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Add() error = %v", err)
	}

	got, _ := items.List(ctx, "a@x.com")
	if len(got) != n {
		t.Errorf("len(List()) = %d, want %d", len(got), n)
	}
}

func TestItemService_StorageUnavailable(t *testing.T) {
	store := &failingStore{}
	items := NewItemService(store, NewLocks(), metrics.NewForTest(), newTestLogger())

	_, err := items.Add(context.Background(), "a@x.com", model.ItemDraft{Name: "Soap"})
	if !errors.Is(err, apperror.ErrStorageUnavailable) {
		t.Errorf("Add() error = %v, want ErrStorageUnavailable", err)
	}
	if store.updates != 1 {
		t.Errorf("store.updates = %d, want 1 (no retry)", store.updates)
	}
}

func TestItemService_EmptyOwnerIsUnauthorized(t *testing.T) {
	_, items, _ := newTestServices(t)

	_, err := items.Add(context.Background(), "", model.ItemDraft{Name: "Soap"})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("Add() error = %v, want ErrUnauthorized", err)
	}
}

func names(items []model.Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}
