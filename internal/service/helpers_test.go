package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/metrics"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository/sqlite"
)

// newTestLogger keeps test output quiet unless something breaks badly.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestServices wires both managers to one in-memory SQLite store, the
// same way the server does.
func newTestServices(t *testing.T) (*CategoryService, *ItemService, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	locks := NewLocks()
	m := metrics.NewForTest()
	logger := newTestLogger()
	return NewCategoryService(db, locks, m, logger), NewItemService(db, locks, m, logger), db
}

// failingStore simulates an unreachable medium.
type failingStore struct {
	updates int
}

var errDiskGone = errors.New("disk I/O error")

func (f *failingStore) View(context.Context, string) (*model.Partition, error) {
	return nil, apperror.StorageUnavailable("viewing partition", errDiskGone)
}

func (f *failingStore) Update(context.Context, string, func(*model.Partition) error) error {
	f.updates++
	return apperror.StorageUnavailable("updating partition", errDiskGone)
}

func (f *failingStore) LoadCategories(context.Context) ([]model.CategoryPartition, error) {
	return nil, apperror.StorageUnavailable("loading categories", errDiskGone)
}

func (f *failingStore) SaveCategories(context.Context, []model.CategoryPartition) error {
	return apperror.StorageUnavailable("saving categories", errDiskGone)
}

func (f *failingStore) LoadItems(context.Context) ([]model.ItemPartition, error) {
	return nil, apperror.StorageUnavailable("loading items", errDiskGone)
}

func (f *failingStore) SaveItems(context.Context, []model.ItemPartition) error {
	return apperror.StorageUnavailable("saving items", errDiskGone)
}

// mustAddItem adds an item and fails the test on error.
func mustAddItem(t *testing.T, items *ItemService, owner string, draft model.ItemDraft) *model.Item {
	t.Helper()
	it, err := items.Add(context.Background(), owner, draft)
	if err != nil {
		t.Fatalf("Add(%q) error = %v", draft.Name, err)
	}
	return it
}

func ptr[T any](v T) *T { return &v }
