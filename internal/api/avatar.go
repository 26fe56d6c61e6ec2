package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/labelforge/labelforge/internal/server"
	"github.com/labelforge/labelforge/pkg/avatars"
	"github.com/labelforge/labelforge/pkg/models"
	"github.com/labelforge/labelforge/pkg/permissions"
)

// avatarPermissions requires avatar.any for every avatar method.
var avatarPermissions = permissions.MethodPermissions{
	http.MethodPost:   permissions.AvatarAny,
	http.MethodDelete: permissions.AvatarAny,
}

// UserAvatarHandler uploads and removes the avatar of a user.
func UserAvatarHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := requestUser(srv, w, r)
		if !ok {
			return
		}
		if !checkCapability(srv, w, r, user, avatarPermissions, nil) {
			return
		}

		id, ok := pathUserID(r)
		if !ok {
			respondNotFound(w, srv.Logger)
			return
		}

		db := srv.DB.WithContext(r.Context())
		isAdmin := srv.Roles.IsAdmin(db, user)

		target, err := findVisibleUser(db, user, isAdmin, id)
		switch {
		case err == nil:
		case errors.Is(err, gorm.ErrRecordNotFound) && id == user.ID:
			target = user
		case errors.Is(err, gorm.ErrRecordNotFound):
			respondNotFound(w, srv.Logger)
			return
		default:
			srv.Logger.Error("error getting user", "error", err, "id", id)
			respondDetail(w, srv.Logger, http.StatusInternalServerError,
				"Error updating avatar")
			return
		}

		if !isAdmin && target.ID != user.ID {
			respondForbidden(w, srv.Logger)
			return
		}

		switch r.Method {
		case "POST":
			uploadAvatar(srv, w, r, target)
		case "DELETE":
			clearAvatar(srv, w, r, target)
		}
	})
}

func uploadAvatar(srv server.Server, w http.ResponseWriter, r *http.Request, target *models.User) {
	maxSize := srv.Config.Avatars.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = avatars.DefaultMaxSize
	}

	filename, data, err := readFirstFilePart(r, maxSize)
	if err != nil {
		srv.Logger.Warn("error reading avatar upload",
			"error", err,
			"target_id", target.ID,
		)
		respondDetail(w, srv.Logger, http.StatusBadRequest, "No avatar file provided")
		return
	}

	img, err := avatars.Validate(filename, data, maxSize)
	if err != nil {
		var ve *avatars.ValidationError
		if errors.As(err, &ve) {
			respondDetail(w, srv.Logger, http.StatusBadRequest, ve.Reason)
			return
		}
		respondDetail(w, srv.Logger, http.StatusBadRequest, err.Error())
		return
	}

	key := avatars.NewKey(img.Ext)
	url, err := srv.Avatars.Put(r.Context(), key, img.ContentType, bytes.NewReader(data))
	if err != nil {
		srv.Logger.Error("error storing avatar",
			"error", err,
			"target_id", target.ID,
			"key", key,
		)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error saving avatar")
		return
	}

	previous := target.Avatar
	target.Avatar = url
	if err := target.Save(srv.DB.WithContext(r.Context())); err != nil {
		srv.Logger.Error("error saving user avatar",
			"error", err,
			"target_id", target.ID,
		)
		removeStoredAvatar(srv, r, url)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error saving avatar")
		return
	}
	removeStoredAvatar(srv, r, previous)

	srv.Logger.Info("saved avatar",
		"target_id", target.ID,
		"format", img.Format,
		"bytes", len(data),
	)
	respondDetail(w, srv.Logger, http.StatusOK, "avatar saved")
}

func clearAvatar(srv server.Server, w http.ResponseWriter, r *http.Request, target *models.User) {
	previous := target.Avatar
	target.Avatar = ""
	if err := target.Save(srv.DB.WithContext(r.Context())); err != nil {
		srv.Logger.Error("error clearing user avatar",
			"error", err,
			"target_id", target.ID,
		)
		respondDetail(w, srv.Logger, http.StatusInternalServerError,
			"Error deleting avatar")
		return
	}
	removeStoredAvatar(srv, r, previous)
	w.WriteHeader(http.StatusNoContent)
}

// removeStoredAvatar deletes the stored object behind url, if the store owns
// it. Failures are only logged.
func removeStoredAvatar(srv server.Server, r *http.Request, url string) {
	if url == "" || srv.Avatars == nil {
		return
	}
	key, ok := srv.Avatars.KeyFromURL(url)
	if !ok {
		return
	}
	if err := srv.Avatars.Delete(r.Context(), key); err != nil {
		srv.Logger.Warn("error deleting stored avatar",
			"error", err,
			"key", key,
		)
	}
}

// readFirstFilePart returns the name and content of the first file part of a
// multipart request. At most maxSize+1 bytes are read so oversized uploads
// can be reported without buffering them.
func readFirstFilePart(r *http.Request, maxSize int64) (string, []byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", nil, errors.New("request is not multipart")
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errors.New("no file part")
		}
		if err != nil {
			return "", nil, err
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, maxSize+1))
		part.Close()
		if err != nil {
			return "", nil, err
		}
		return part.FileName(), data, nil
	}
}
