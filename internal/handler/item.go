package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/home-manager/internal/model"
)

// ItemManager is the item lifecycle the handler needs.
// Implemented by *service.ItemService.
type ItemManager interface {
	Get(ctx context.Context, owner, id string) (*model.Item, error)
	Add(ctx context.Context, owner string, draft model.ItemDraft) (*model.Item, error)
	Update(ctx context.Context, owner, id string, patch model.ItemPatch) (*model.Item, error)
	Delete(ctx context.Context, owner, id string) error
	Query(ctx context.Context, owner string, q model.ItemQuery) ([]model.Item, error)
}

// ItemHandler exposes CRUD and search over the signed-in owner's items.
type ItemHandler struct {
	items  ItemManager
	logger *slog.Logger
}

// NewItemHandler creates an ItemHandler.
func NewItemHandler(items ItemManager, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{items: items, logger: logger}
}

// ItemsResponse wraps a list of items.
type ItemsResponse struct {
	Items []model.Item `json:"items"`
}

// HandleList returns the owner's items, newest first, filtered by the
// optional query parameters.
//
// HTTP: GET /api/items?q=soap&category=bathroom&status=pending
//
// category and status accept "all"; a missing parameter also means all.
func (h *ItemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	items, err := h.items.Query(r.Context(), owner, model.ItemQuery{
		Text:     q.Get("q"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemsResponse{Items: items})
}

// HandleGet returns one item.
//
// HTTP: GET /api/items/{id}
func (h *ItemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	item, err := h.items.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleCreate adds an item.
//
// HTTP: POST /api/items
// REQUEST BODY: {"name":"Dish soap","description":"","category":"kitchen","status":"pending","quantity":2}
func (h *ItemHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var draft model.ItemDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		h.logger.Warn("invalid item JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	item, err := h.items.Add(r.Context(), owner, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// HandleUpdate replaces the fields present in the body.
//
// HTTP: PUT /api/items/{id}
// REQUEST BODY: any subset of {"name","description","category","status","quantity"}
func (h *ItemHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	var patch model.ItemPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.logger.Warn("invalid item patch JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	item, err := h.items.Update(r.Context(), owner, id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// HandleDelete removes an item.
//
// HTTP: DELETE /api/items/{id}
func (h *ItemHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.items.Delete(r.Context(), owner, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
