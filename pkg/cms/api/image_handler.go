package api

import (
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

func (s *Server) imageRoutes(kind cms.ImageKind) chi.Router {
	h := &imageHandler{Server: s, kind: kind}
	r := chi.NewRouter()

	r.Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(r chi.Router) {
		r.Use(s.requireStaff)
		r.Post("/", h.create)
		r.Put("/{id}", h.update(false))
		r.Patch("/{id}", h.update(true))
		r.Delete("/{id}", h.delete)
	})

	return r
}

// imageHandler serves one image table.
type imageHandler struct {
	*Server
	kind cms.ImageKind
}

func (h *imageHandler) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseImageQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	images, err := h.service.ListImages(r.Context(), h.kind, q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]*ImageResponse, 0, len(images))
	for _, img := range images {
		item, err := h.imageResponse(r.Context(), img)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		resp = append(resp, item)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *imageHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	img, err := h.service.GetImage(r.Context(), h.kind, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.renderImage(w, r, http.StatusOK, img)
}

func (h *imageHandler) create(w http.ResponseWriter, r *http.Request) {
	upload, closeFn, err := h.multipartFile(w, r)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		h.writeError(w, r, err)
		return
	}
	defer closeFn()

	img, err := h.service.CreateImage(r.Context(), cms.CreateImageRequest{
		Kind:    h.kind,
		File:    upload,
		AltText: r.FormValue("alt_text"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Image created", "kind", h.kind, "id", img.ID, "file", img.File)
	h.renderImage(w, r, http.StatusCreated, img)
}

func (h *imageHandler) update(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(chi.URLParam(r, "id"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		req := cms.UpdateImageRequest{Kind: h.kind, ID: id, Partial: partial}
		if isMultipart(r) {
			upload, closeFn, err := h.multipartFile(w, r)
			if err != nil && !errors.Is(err, http.ErrMissingFile) {
				h.writeError(w, r, err)
				return
			}
			defer closeFn()
			req.File = upload
			if values, ok := r.MultipartForm.Value["alt_text"]; ok && len(values) > 0 {
				req.AltText = cms.Some(values[0])
			}
		} else {
			var body struct {
				AltText cms.Optional[string] `json:"alt_text"`
			}
			if err := decodeJSON(r, &body); err != nil {
				h.writeError(w, r, err)
				return
			}
			req.AltText = body.AltText
		}

		img, err := h.service.UpdateImage(r.Context(), req)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.renderImage(w, r, http.StatusOK, img)
	}
}

func (h *imageHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.service.DeleteImage(r.Context(), h.kind, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Image deleted", "kind", h.kind, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *imageHandler) renderImage(w http.ResponseWriter, r *http.Request, status int, img *cms.Image) {
	resp, err := h.imageResponse(r.Context(), img)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, resp)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

// multipartFile parses a multipart body capped at the upload limit and
// returns its "file" part. The returned close function is always safe to
// call. A request without a file part yields http.ErrMissingFile.
func (s *Server) multipartFile(w http.ResponseWriter, r *http.Request) (*cms.Upload, func(), error) {
	noop := func() {}
	if !isMultipart(r) {
		return nil, noop, &badRequestError{msg: "Unsupported media type, expected multipart/form-data."}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, noop, cms.NewValidationError("file", "The submitted file is too large.")
		}
		return nil, noop, &badRequestError{msg: "Multipart form parse error - " + err.Error()}
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, cleanup, err
	}
	upload := &cms.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Reader:      file,
	}
	return upload, func() {
		_ = file.Close()
		cleanup()
	}, nil
}
