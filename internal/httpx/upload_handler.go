package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/identity"
	"github.com/ariefcatur/go-shop-orders/internal/upload"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UploadHandler struct {
	Store *upload.Store
	Log   *zap.Logger
}

func (h *UploadHandler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.With(auth).Post("/upload", h.upload)
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.Store.Dir)))
	r.Get("/uploads/*", fs.ServeHTTP)
}

func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	if !callerFrom(r).Is(identity.RoleAdmin) {
		writeError(w, http.StatusForbidden, "forbidden", "admin access required")
		return
	}
	// multipart framing gets 1 MiB on top of the file limit
	r.Body = http.MaxBytesReader(w, r.Body, h.Store.MaxBytes+1<<20)

	file, _, err := r.FormFile("image")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", upload.ErrTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "multipart field \"image\" is required")
		return
	}
	defer file.Close()

	name, err := h.Store.Save(file)
	switch {
	case errors.Is(err, upload.ErrNotAnImage):
		writeError(w, http.StatusUnsupportedMediaType, "invalid_request", err.Error())
		return
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
		return
	case err != nil:
		h.Log.Error("save upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store_failure", "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"imageUrl": fmt.Sprintf("%s://%s/uploads/%s", scheme(r), r.Host, name),
	})
}

func scheme(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return strings.ToLower(p)
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
