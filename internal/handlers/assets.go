package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/internal/storage"
)

// AssetOpener reads placed assets by reference.
type AssetOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	UploadsPrefix() string
}

// AssetRouter serves cover files under /<uploads>/*.
func AssetRouter(r chi.Router, assets AssetOpener, log logging.Logger) {
	prefix := "/" + assets.UploadsPrefix()
	r.Get(prefix+"/*", func(w http.ResponseWriter, req *http.Request) {
		ref := assets.UploadsPrefix() + "/" + strings.TrimPrefix(chi.URLParam(req, "*"), "/")

		rc, err := assets.Open(req.Context(), ref)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.NotFound(w, req)
				return
			}
			log.Error(req.Context(), "failed to open asset", "ref", ref, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read asset")
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", storage.ContentType(ref))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
		if _, err := io.Copy(w, rc); err != nil {
			log.Warn(req.Context(), "asset response interrupted", "ref", ref, "error", err)
		}
	})
}
