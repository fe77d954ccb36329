package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cardfolio-api/internal/model"
	"cardfolio-api/internal/service"
	"cardfolio-api/pkg/response"
)

// ProfileHandler serves the signed-in user's profile and friend list.
type ProfileHandler struct {
	profile   *service.ProfileCache
	directory *service.FriendDirectory
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(profile *service.ProfileCache, directory *service.FriendDirectory) *ProfileHandler {
	return &ProfileHandler{profile: profile, directory: directory}
}

// Get handles GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profile.Get(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.OK(w, p)
}

// Reload handles POST /api/v1/profile/reload
func (h *ProfileHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.profile.Reload(r.Context()); err != nil {
		response.Error(w, r, err)
		return
	}
	h.Get(w, r)
}

// Update handles PATCH /api/v1/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.profile.UpdateProfile(r.Context(), req); err != nil {
		response.Error(w, r, err)
		return
	}
	h.changed(w, r)
}

// VisibilityRequest is the body of PUT /api/v1/profile/visibility.
type VisibilityRequest struct {
	Public *bool `json:"isProfilPublic"`
}

// UpdateVisibility handles PUT /api/v1/profile/visibility
func (h *ProfileHandler) UpdateVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Public == nil {
		response.Error(w, r, badField("isProfilPublic", "is required"))
		return
	}
	if err := h.profile.UpdateVisibility(r.Context(), *req.Public); err != nil {
		response.Error(w, r, err)
		return
	}
	h.changed(w, r)
}

// AvatarRequest is the body of PUT /api/v1/profile/avatar.
type AvatarRequest struct {
	AvatarURL string `json:"avatarUrl"`
}

// UpdateAvatar handles PUT /api/v1/profile/avatar
func (h *ProfileHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	var req AvatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.profile.UpdateAvatar(r.Context(), req.AvatarURL); err != nil {
		response.Error(w, r, err)
		return
	}
	h.changed(w, r)
}

// changed drops the user's own directory entry and returns the profile.
func (h *ProfileHandler) changed(w http.ResponseWriter, r *http.Request) {
	if h.directory != nil {
		if p := h.profile.Store().Value(); p != nil {
			h.directory.Invalidate(p.ID)
		}
	}
	h.Get(w, r)
}

// Friends handles GET /api/v1/friends
func (h *ProfileHandler) Friends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.directory.Friends(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, friends, response.Meta{Total: len(friends)})
}

// FriendRequest is the body of POST /api/v1/friends.
type FriendRequest struct {
	FriendID string `json:"friendId"`
}

// AddFriend handles POST /api/v1/friends
func (h *ProfileHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	var req FriendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.FriendID) == "" {
		response.Error(w, r, badField("friendId", "is required"))
		return
	}
	if _, err := h.directory.User(r.Context(), req.FriendID); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := h.profile.AddFriend(r.Context(), req.FriendID); err != nil {
		response.Error(w, r, err)
		return
	}
	h.Friends(w, r)
}

// RemoveFriend handles DELETE /api/v1/friends/{id}
func (h *ProfileHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	if err := h.profile.RemoveFriend(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.Error(w, r, err)
		return
	}
	response.NoContent(w)
}
