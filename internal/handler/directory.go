package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cardfolio-api/internal/model"
	"cardfolio-api/internal/service"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// DirectoryHandler lets the signed-in user look up other users.
type DirectoryHandler struct {
	directory *service.FriendDirectory
}

// NewDirectoryHandler creates a new directory handler.
func NewDirectoryHandler(directory *service.FriendDirectory) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// Search handles GET /api/v1/users/search?email=|username=
func (h *DirectoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		found []model.PublicProfile
		err   error
	)
	switch {
	case q.Get("email") != "":
		found, err = h.directory.SearchByEmail(r.Context(), q.Get("email"))
	case q.Get("username") != "":
		found, err = h.directory.SearchByUsername(r.Context(), q.Get("username"))
	default:
		err = apierror.BadRequest("email or username is required")
	}
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, found, response.Meta{Total: len(found)})
}

// User handles GET /api/v1/users/{id}
func (h *DirectoryHandler) User(w http.ResponseWriter, r *http.Request) {
	p, err := h.directory.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, p)
}

// Collection handles GET /api/v1/users/{id}/collection?limit=n
func (h *DirectoryHandler) Collection(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", service.DefaultCollectionPreview)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	items, err := h.directory.Collection(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, items, response.Meta{Total: len(items)})
}
