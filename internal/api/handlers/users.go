package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/eventdesk/server/internal/api/middleware"
	"github.com/eventdesk/server/internal/api/problem"
	"github.com/eventdesk/server/internal/auth"
	"github.com/eventdesk/server/internal/domain/users"
	"github.com/eventdesk/server/internal/fault"
	"github.com/eventdesk/server/internal/uploads"
)

const profileImageField = "image"

var errMissingImage = fault.New(fault.KindValidation, "missing_file", "no image file provided")

type ProfileService interface {
	ChangePassword(ctx context.Context, userID string, input users.ChangePasswordInput) error
	SetProfileImage(ctx context.Context, userID, image string) (users.User, error)
}

// ImageStore persists uploaded images and returns their public path.
type ImageStore interface {
	SaveImage(r io.Reader) (string, error)
}

type UsersHandler struct {
	profiles ProfileService
	images   ImageStore
	env      string
}

func NewUsersHandler(profiles ProfileService, images ImageStore, env string) *UsersHandler {
	return &UsersHandler{profiles: profiles, images: images, env: env}
}

// ChangePassword handles PUT /users/me/password.
func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		problem.Write(w, r, auth.ErrMissingToken, h.env, problem.WithAuthenticated(false))
		return
	}

	var input users.ChangePasswordInput
	if err := decodeJSON(r, &input); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	if err := h.profiles.ChangePassword(r.Context(), user.ID, input); err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, "password updated", nil)
}

// UploadProfileImage handles POST /users/me/profile-image with a multipart
// "image" field.
func (h *UsersHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		problem.Write(w, r, auth.ErrMissingToken, h.env, problem.WithAuthenticated(false))
		return
	}

	file, _, err := r.FormFile(profileImageField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			problem.Write(w, r, uploads.ErrTooLarge, h.env)
			return
		}
		problem.Write(w, r, errMissingImage, h.env)
		return
	}
	defer file.Close()

	path, err := h.images.SaveImage(file)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}

	updated, err := h.profiles.SetProfileImage(r.Context(), user.ID, path)
	if err != nil {
		problem.Write(w, r, err, h.env)
		return
	}
	writeData(w, http.StatusOK, "profile image updated", newMeResponse(updated))
}
