package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// serveMedia streams a locally stored object.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		s.writeError(w, r, errNotFound)
		return
	}

	// Invalid keys (such as path traversal) are reported as missing.
	meta, err := s.media.GetObjectMeta(r.Context(), key)
	if err != nil {
		s.logger.DebugContext(r.Context(), "media lookup failed", "key", key, "error", err)
		s.writeError(w, r, errNotFound)
		return
	}
	rc, err := s.media.Download(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.WarnContext(r.Context(), "media copy interrupted", "key", key, "error", err)
	}
}
