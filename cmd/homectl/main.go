// Command homectl exports and imports the home manager record store as a
// single JSON document:
//
//	{"categories": [{"ownerRef": "...", "categories": [...]}],
//	 "items":      [{"ownerRef": "...", "items": [...]}]}
//
// Usage:
//
//	homectl -db data/home-manager.db export [-o backup.json]
//	homectl -db data/home-manager.db import -i backup.json
//
// Import replaces both collections in a single transaction.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository"
	"github.com/sakif/home-manager/internal/repository/sqlite"
)

// Document is the export file layout.
type Document struct {
	Categories []model.CategoryPartition `json:"categories"`
	Items      []model.ItemPartition     `json:"items"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("homectl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("homectl", flag.ContinueOnError)
	dbPath := fs.String("db", "data/home-manager.db", "path to the SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: homectl -db PATH export [-o FILE] | import -i FILE")
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "export":
		sub := flag.NewFlagSet("export", flag.ContinueOnError)
		out := sub.String("o", "-", "output file (- for stdout)")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		w := stdout
		if *out != "-" {
			f, err := os.Create(*out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", *out, err)
			}
			defer f.Close()
			w = f
		}
		doc, err := exportDocument(ctx, db, w)
		if err != nil {
			return err
		}
		logger.Info("exported",
			slog.Int("categoryOwners", len(doc.Categories)),
			slog.Int("itemOwners", len(doc.Items)),
		)
		return nil

	case "import":
		sub := flag.NewFlagSet("import", flag.ContinueOnError)
		in := sub.String("i", "-", "input file (- for stdin)")
		if err := sub.Parse(rest); err != nil {
			return err
		}
		r := stdin
		if *in != "-" {
			f, err := os.Open(*in)
			if err != nil {
				return fmt.Errorf("opening %s: %w", *in, err)
			}
			defer f.Close()
			r = f
		}
		doc, err := importDocument(ctx, db, r)
		if err != nil {
			return err
		}
		logger.Info("imported",
			slog.Int("categoryOwners", len(doc.Categories)),
			slog.Int("itemOwners", len(doc.Items)),
		)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func exportDocument(ctx context.Context, store repository.RecordStore, w io.Writer) (*Document, error) {
	cats, err := store.LoadCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", repository.CollectionCategories, err)
	}
	items, err := store.LoadItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", repository.CollectionItems, err)
	}

	doc := &Document{Categories: cats, Items: items}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("writing export: %w", err)
	}
	return doc, nil
}

// importer replaces both collections at once.
type importer interface {
	Import(ctx context.Context, cats []model.CategoryPartition, items []model.ItemPartition) error
}

func importDocument(ctx context.Context, store importer, r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("reading import: %w", err)
	}
	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	if err := store.Import(ctx, doc.Categories, doc.Items); err != nil {
		return nil, fmt.Errorf("saving %s and %s: %w",
			repository.CollectionCategories, repository.CollectionItems, err)
	}
	return &doc, nil
}

// validateDocument rejects, before anything is written: partitions without
// an owner, an owner listed twice in one collection, items without an ID,
// IDs repeated anywhere in the document, and unknown statuses.
func validateDocument(doc *Document) error {
	catOwners := make(map[string]bool, len(doc.Categories))
	for i, p := range doc.Categories {
		if p.OwnerRef == "" {
			return fmt.Errorf("categories[%d]: ownerRef is required", i)
		}
		if catOwners[p.OwnerRef] {
			return fmt.Errorf("categories[%d]: duplicate ownerRef %s", i, p.OwnerRef)
		}
		catOwners[p.OwnerRef] = true
	}

	itemOwners := make(map[string]bool, len(doc.Items))
	seen := make(map[string]bool)
	for i, p := range doc.Items {
		if p.OwnerRef == "" {
			return fmt.Errorf("items[%d]: ownerRef is required", i)
		}
		if itemOwners[p.OwnerRef] {
			return fmt.Errorf("items[%d]: duplicate ownerRef %s", i, p.OwnerRef)
		}
		itemOwners[p.OwnerRef] = true
		for j, it := range p.Items {
			if it.ID == "" {
				return fmt.Errorf("items[%d].items[%d]: id is required", i, j)
			}
			if seen[it.ID] {
				return fmt.Errorf("items[%d].items[%d]: duplicate id %s", i, j, it.ID)
			}
			seen[it.ID] = true
			if !it.Status.Valid() {
				return fmt.Errorf("items[%d].items[%d]: invalid status %q", i, j, it.Status)
			}
		}
	}
	return nil
}
