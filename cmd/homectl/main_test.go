package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakif/home-manager/internal/model"
	"github.com/sakif/home-manager/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const sampleDoc = `{
  "categories": [
    {"ownerRef": "ana@example.com", "categories": ["grocery", "garage"]},
    {"ownerRef": "bob@example.com", "categories": []}
  ],
  "items": [
    {"ownerRef": "ana@example.com", "items": [
      {"id": "c1", "name": "Rake", "description": "", "category": "garage",
       "status": "future-needs", "quantity": 1,
       "createdAt": "2026-01-02T10:00:00Z", "updatedAt": "2026-01-02T10:00:00Z"},
      {"id": "c0", "name": "Milk", "description": "2%", "category": "grocery",
       "status": "pending", "quantity": 0,
       "createdAt": "2026-01-01T10:00:00Z", "updatedAt": "2026-01-01T10:00:00Z"}
    ]}
  ]
}`

func TestImportThenExport(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "hm.db")
	in := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(in, []byte(sampleDoc), 0o600))

	require.NoError(t, run(ctx, []string{"-db", db, "import", "-i", in}, nil, io.Discard, discard()))

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"-db", db, "export"}, nil, &out, discard()))

	var doc Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))

	require.Len(t, doc.Categories, 2)
	cats := map[string][]string{}
	for _, p := range doc.Categories {
		cats[p.OwnerRef] = p.Categories
	}
	assert.Equal(t, []string{"grocery", "garage"}, cats["ana@example.com"])
	assert.Empty(t, cats["bob@example.com"])

	var anaItems []string
	for _, p := range doc.Items {
		if p.OwnerRef == "ana@example.com" {
			for _, it := range p.Items {
				anaItems = append(anaItems, it.Name)
				assert.Equal(t, "ana@example.com", it.OwnerRef)
			}
		}
	}
	assert.Equal(t, []string{"Rake", "Milk"}, anaItems)
}

func TestExportToFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := filepath.Join(dir, "hm.db")
	out := filepath.Join(dir, "out.json")

	require.NoError(t, run(ctx, []string{"-db", db, "import"}, strings.NewReader(sampleDoc), io.Discard, discard()))
	require.NoError(t, run(ctx, []string{"-db", db, "export", "-o", out}, nil, io.Discard, discard()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Rake"`)
}

func TestImport_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"categories":`},
		{"unknown field", `{"categories":[],"items":[],"extra":1}`},
		{"missing owner", `{"categories":[{"ownerRef":"","categories":[]}],"items":[]}`},
		{"missing item id", `{"categories":[],"items":[{"ownerRef":"a@x.com","items":[{"name":"x","status":"pending"}]}]}`},
		{"bad status", `{"categories":[],"items":[{"ownerRef":"a@x.com","items":[{"id":"1","name":"x","status":"done"}]}]}`},
		{"duplicate id", `{"categories":[],"items":[{"ownerRef":"a@x.com","items":[{"id":"1","name":"x","status":"pending"},{"id":"1","name":"y","status":"pending"}]}]}`},
		{"duplicate id across owners", `{"categories":[],"items":[{"ownerRef":"a@x.com","items":[{"id":"1","name":"x","status":"pending"}]},{"ownerRef":"b@x.com","items":[{"id":"1","name":"y","status":"pending"}]}]}`},
		{"duplicate item owner", `{"categories":[],"items":[{"ownerRef":"a@x.com","items":[{"id":"1","name":"x","status":"pending"}]},{"ownerRef":"a@x.com","items":[{"id":"2","name":"y","status":"pending"}]}]}`},
		{"duplicate category owner", `{"categories":[{"ownerRef":"a@x.com","categories":["a"]},{"ownerRef":"a@x.com","categories":["b"]}],"items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "hm.db")
			err := run(context.Background(), []string{"-db", db, "import"}, strings.NewReader(tt.doc), io.Discard, discard())
			assert.Error(t, err)
		})
	}
}

func TestRun_Usage(t *testing.T) {
	db := filepath.Join(t.TempDir(), "hm.db")

	assert.Error(t, run(context.Background(), []string{"-db", db}, nil, io.Discard, discard()))
	assert.Error(t, run(context.Background(), []string{"-db", db, "frobnicate"}, nil, io.Discard, discard()))
}

// A rejected import must leave the previous contents in place.
func TestImport_RejectedDocumentKeepsStore(t *testing.T) {
	ctx := context.Background()
	db := filepath.Join(t.TempDir(), "hm.db")
	require.NoError(t, run(ctx, []string{"-db", db, "import"}, strings.NewReader(sampleDoc), io.Discard, discard()))

	bad := `{
	  "categories": [{"ownerRef": "ana@example.com", "categories": ["new-cat"]}],
	  "items": [
	    {"ownerRef": "ana@example.com", "items": [{"id": "dup", "name": "x", "status": "pending"}]},
	    {"ownerRef": "bob@example.com", "items": [{"id": "dup", "name": "y", "status": "pending"}]}
	  ]
	}`
	require.Error(t, run(ctx, []string{"-db", db, "import"}, strings.NewReader(bad), io.Discard, discard()))

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"-db", db, "export"}, nil, &out, discard()))
	var doc Document
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))

	for _, p := range doc.Categories {
		if p.OwnerRef == "ana@example.com" {
			assert.Equal(t, []string{"grocery", "garage"}, p.Categories)
		}
	}
	var total int
	for _, p := range doc.Items {
		total += len(p.Items)
	}
	assert.Equal(t, 2, total)
}

// The store rolls back a document that slips past validation.
func TestImport_StoreRollsBackDuplicateOwners(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "hm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cats := []model.CategoryPartition{{OwnerRef: "a@x.com", Categories: []string{"new-cat"}}}
	items := []model.ItemPartition{
		{OwnerRef: "a@x.com", Items: []model.Item{{ID: "i1", Name: "x", Status: model.StatusPending}}},
		{OwnerRef: "a@x.com", Items: []model.Item{{ID: "i2", Name: "y", Status: model.StatusPending}}},
	}
	require.Error(t, store.Import(ctx, cats, items))

	got, err := store.LoadCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
