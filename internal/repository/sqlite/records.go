package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/sakif/home-manager/internal/apperror"
	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
)

var _ repository.RecordStore = (*DB)(nil)

// View returns a snapshot of the owner's partition, creating it first if
// the owner has never been seen.
func (db *DB) View(ctx context.Context, owner string) (*model.Partition, error) {
	var p *model.Partition
	err := db.inTx(ctx, "viewing partition", func(tx *sql.Tx) error {
		var err error
		p, err = db.loadPartition(ctx, tx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update runs fn against the owner's partition inside one transaction and
// writes back both categories and items. A category rename and its cascade
// into items therefore commit or roll back together.
func (db *DB) Update(ctx context.Context, owner string, fn func(p *model.Partition) error) error {
	return db.inTx(ctx, "updating partition", func(tx *sql.Tx) error {
		p, err := db.loadPartition(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return callbackError{err}
		}
		if err := writeCategories(ctx, tx, owner, p.Categories); err != nil {
			return err
		}
		return writeItems(ctx, tx, owner, p.Items)
	})
}

// LoadCategories returns the whole "categories" collection, one partition
// per known owner (owners with no categories get an empty slice).
func (db *DB) LoadCategories(ctx context.Context) ([]model.CategoryPartition, error) {
	var out []model.CategoryPartition
	err := db.inTx(ctx, "loading categories", func(tx *sql.Tx) error {
		owners, err := listOwners(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]model.CategoryPartition, 0, len(owners))
		for _, owner := range owners {
			keys, err := readCategories(ctx, tx, owner)
			if err != nil {
				return err
			}
			out = append(out, model.CategoryPartition{OwnerRef: owner, Categories: keys})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveCategories replaces the whole "categories" collection.
func (db *DB) SaveCategories(ctx context.Context, data []model.CategoryPartition) error {
	return db.inTx(ctx, "saving categories", func(tx *sql.Tx) error {
		return replaceCategories(ctx, tx, data)
	})
}

// LoadItems returns the whole "items" collection, one partition per known
// owner, newest item first within each partition.
func (db *DB) LoadItems(ctx context.Context) ([]model.ItemPartition, error) {
	var out []model.ItemPartition
	err := db.inTx(ctx, "loading items", func(tx *sql.Tx) error {
		owners, err := listOwners(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]model.ItemPartition, 0, len(owners))
		for _, owner := range owners {
			items, err := readItems(ctx, tx, owner)
			if err != nil {
				return err
			}
			out = append(out, model.ItemPartition{OwnerRef: owner, Items: items})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveItems replaces the whole "items" collection.
func (db *DB) SaveItems(ctx context.Context, data []model.ItemPartition) error {
	return db.inTx(ctx, "saving items", func(tx *sql.Tx) error {
		return replaceItems(ctx, tx, data)
	})
}

// Import replaces both collections in one transaction: either the whole
// document lands or the store is left as it was.
func (db *DB) Import(ctx context.Context, cats []model.CategoryPartition, items []model.ItemPartition) error {
	return db.inTx(ctx, "importing collections", func(tx *sql.Tx) error {
		if err := replaceCategories(ctx, tx, cats); err != nil {
			return err
		}
		return replaceItems(ctx, tx, items)
	})
}

// replaceCategories rewrites the categories table from data. Each owner may
// appear once; a second partition would overwrite the first.
func replaceCategories(ctx context.Context, tx *sql.Tx, data []model.CategoryPartition) error {
	owners := make(map[string]bool, len(data))
	for _, part := range data {
		if owners[part.OwnerRef] {
			return callbackError{apperror.ValidationFailed("ownerRef",
				fmt.Sprintf("duplicate categories partition for %q", part.OwnerRef))}
		}
		owners[part.OwnerRef] = true
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return err
	}
	for _, part := range data {
		if _, err := insertOwner(ctx, tx, part.OwnerRef); err != nil {
			return err
		}
		if err := writeCategories(ctx, tx, part.OwnerRef, part.Categories); err != nil {
			return err
		}
	}
	return nil
}

// replaceItems rewrites the items table from data. Owners appear once and
// item IDs are unique across the whole collection.
func replaceItems(ctx context.Context, tx *sql.Tx, data []model.ItemPartition) error {
	owners := make(map[string]bool, len(data))
	ids := make(map[string]string)
	for _, part := range data {
		if owners[part.OwnerRef] {
			return callbackError{apperror.ValidationFailed("ownerRef",
				fmt.Sprintf("duplicate items partition for %q", part.OwnerRef))}
		}
		owners[part.OwnerRef] = true
		for _, it := range part.Items {
			if prev, ok := ids[it.ID]; ok {
				return callbackError{apperror.ValidationFailed("id",
					fmt.Sprintf("item %s appears under %q and %q", it.ID, prev, part.OwnerRef))}
			}
			ids[it.ID] = part.OwnerRef
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return err
	}
	for _, part := range data {
		if _, err := insertOwner(ctx, tx, part.OwnerRef); err != nil {
			return err
		}
		if err := writeItems(ctx, tx, part.OwnerRef, part.Items); err != nil {
			return err
		}
	}
	return nil
}

// callbackError marks an error that is not a storage failure (an Update
// callback's error, a rejected collection) so inTx hands it back untouched.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }

// inTx runs fn in a transaction. Driver errors come back as
// apperror.StorageUnavailable; callback errors come back as they were.
func (db *DB) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.StorageUnavailable(op, err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		if cbErr, ok := err.(callbackError); ok {
			return cbErr.err
		}
		return apperror.StorageUnavailable(op, err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.StorageUnavailable(op, err)
	}
	return nil
}

// loadPartition is the get-or-create step: an unknown owner gets an owners
// row and the default categories before anything is read.
func (db *DB) loadPartition(ctx context.Context, tx *sql.Tx, owner string) (*model.Partition, error) {
	created, err := insertOwner(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	if created {
		if err := writeCategories(ctx, tx, owner, db.defaults); err != nil {
			return nil, err
		}
	}

	keys, err := readCategories(ctx, tx, owner)
	if err != nil {
		return nil, err
	}
	items, err := readItems(ctx, tx, owner)
	if err != nil {
		return nil, err
	}

	return &model.Partition{OwnerRef: owner, Categories: keys, Items: items}, nil
}

// insertOwner registers the owner and reports whether the row is new.
func insertOwner(ctx context.Context, tx *sql.Tx, owner string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO owners (owner_ref, created_at) VALUES (?, ?)`,
		owner, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting owner %q: %w", owner, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

func listOwners(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT owner_ref FROM owners ORDER BY created_at, owner_ref`)
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scanning owner row: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func readCategories(ctx context.Context, tx *sql.Tx, owner string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT key FROM categories WHERE owner_ref = ? ORDER BY position`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("reading categories for %q: %w", owner, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// writeCategories replaces the owner's category rows. Duplicate keys keep
// their first position.
func writeCategories(ctx context.Context, tx *sql.Tx, owner string, keys []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE owner_ref = ?`, owner); err != nil {
		return fmt.Errorf("clearing categories for %q: %w", owner, err)
	}
	for i, k := range keys {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (owner_ref, position, key) VALUES (?, ?, ?)`,
			owner, i, k,
		)
		if err != nil {
			return fmt.Errorf("inserting category %q: %w", k, err)
		}
	}
	return nil
}

func readItems(ctx context.Context, tx *sql.Tx, owner string) ([]model.Item, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, description, category, status, quantity, created_at, updated_at
		 FROM items
		 WHERE owner_ref = ?`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("reading items for %q: %w", owner, err)
	}
	defer rows.Close()

	items := []model.Item{}
	for rows.Next() {
		it := model.Item{OwnerRef: owner}
		var status string
		if err := rows.Scan(
			&it.ID, &it.Name, &it.Description, &it.Category, &status,
			&it.Quantity, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		it.Status = model.ItemStatus(status)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	sortNewestFirst(items)
	return items, nil
}

// writeItems replaces the owner's item rows. OwnerRef is forced to owner.
func writeItems(ctx context.Context, tx *sql.Tx, owner string, items []model.Item) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE owner_ref = ?`, owner); err != nil {
		return fmt.Errorf("clearing items for %q: %w", owner, err)
	}
	for _, it := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, owner_ref, name, description, category, status, quantity, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, owner, it.Name, it.Description, it.Category, string(it.Status),
			it.Quantity, it.CreatedAt.UTC(), it.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting item %s: %w", it.ID, err)
		}
	}
	return nil
}

// sortNewestFirst orders by creation time, newest first. xids sort by
// creation too, so they break ties between items created in the same
// instant.
func sortNewestFirst(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
