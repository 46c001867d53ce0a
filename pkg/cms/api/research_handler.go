package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

func (s *Server) researchRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.listResearch)
	r.Get("/{id}", s.getResearch)
	r.Get("/slug/{slug}", s.getResearchBySlug)

	r.Group(func(r chi.Router) {
		r.Use(s.requireStaff)
		r.Post("/", s.createResearch)
		r.Put("/{id}", s.updateResearch(false))
		r.Patch("/{id}", s.updateResearch(true))
		r.Delete("/{id}", s.deleteResearch)
		r.Post("/{id}/file", s.attachResearchFile)
	})

	return r
}

func (s *Server) listResearch(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r, cms.KindResearch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items, err := s.service.ListResearch(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]*ResearchResponse, 0, len(items))
	for _, item := range items {
		out, err := s.researchResponse(r.Context(), item)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp = append(resp, out)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getResearch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	research, err := s.service.GetResearch(r.Context(), roleOf(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderResearch(w, r, http.StatusOK, research)
}

func (s *Server) getResearchBySlug(w http.ResponseWriter, r *http.Request) {
	research, err := s.service.GetResearchBySlug(r.Context(), roleOf(r), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderResearch(w, r, http.StatusOK, research)
}

func (s *Server) createResearch(w http.ResponseWriter, r *http.Request) {
	var in cms.ResearchInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	research, err := s.service.CreateResearch(r.Context(), cms.CreateResearchRequest{Input: in})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Research created", "id", research.ID, "slug", research.Slug)
	s.renderResearch(w, r, http.StatusCreated, research)
}

func (s *Server) updateResearch(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var in cms.ResearchInput
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}

		research, err := s.service.UpdateResearch(r.Context(), cms.UpdateResearchRequest{ID: id, Input: in, Partial: partial})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.renderResearch(w, r, http.StatusOK, research)
	}
}

func (s *Server) deleteResearch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.DeleteResearch(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Research deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachResearchFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	upload, closeFn, err := s.multipartFile(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer closeFn()

	research, err := s.service.AttachResearchFile(r.Context(), cms.AttachResearchFileRequest{ID: id, File: upload})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderResearch(w, r, http.StatusOK, research)
}

func (s *Server) renderResearch(w http.ResponseWriter, r *http.Request, status int, research *cms.Research) {
	resp, err := s.researchResponse(r.Context(), research)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, resp)
}
