package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

// CategoryManager is the category lifecycle the handler needs.
// Implemented by *service.CategoryService.
type CategoryManager interface {
	List(ctx context.Context, owner string) ([]string, error)
	Add(ctx context.Context, owner, rawName string) ([]string, error)
	Rename(ctx context.Context, owner, oldKey, newRawName string) ([]string, error)
	Delete(ctx context.Context, owner, key string) ([]string, error)
}

// CategoryHandler exposes the signed-in owner's category list. Every
// operation responds with the full, updated list.
type CategoryHandler struct {
	categories CategoryManager
	logger     *slog.Logger
}

// NewCategoryHandler creates a CategoryHandler.
func NewCategoryHandler(categories CategoryManager, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

type addCategoryRequest struct {
	Category string `json:"category"`
}

type renameCategoryRequest struct {
	NewCategory string `json:"newCategory"`
}

// CategoriesResponse wraps the ordered category keys.
type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

// HandleList returns the owner's categories.
//
// HTTP: GET /api/categories
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	keys, err := h.categories.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: keys})
}

// HandleAdd adds a category; adding one that normalizes to an existing key
// is a no-op.
//
// HTTP: POST /api/categories
// REQUEST BODY: {"category": "Home Office"}
func (h *CategoryHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req addCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid category JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	keys, err := h.categories.Add(r.Context(), owner, req.Category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: keys})
}

// HandleRename renames a category and moves its items along.
//
// HTTP: PUT /api/categories/{key}
// REQUEST BODY: {"newCategory": "Office Supplies"}
func (h *CategoryHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}

	var req renameCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid rename JSON", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	keys, err := h.categories.Rename(r.Context(), owner, key, req.NewCategory)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: keys})
}

// HandleDelete removes a category; its items become uncategorized.
//
// HTTP: DELETE /api/categories/{key}
func (h *CategoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	key, ok := pathParam(w, r, "key")
	if !ok {
		return
	}

	keys, err := h.categories.Delete(r.Context(), owner, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: keys})
}

// pathParam returns the unescaped chi URL parameter, writing a 400 if it
// is malformed.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "malformed " + name,
			Field:   name,
		})
		return "", false
	}
	return v, true
}
