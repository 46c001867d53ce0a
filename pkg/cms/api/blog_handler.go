package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

func (s *Server) blogRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", s.listBlogs)
	r.Get("/{id}", s.getBlog)
	r.Get("/slug/{slug}", s.getBlogBySlug)

	r.Group(func(r chi.Router) {
		r.Use(s.requireStaff)
		r.Post("/", s.createBlog)
		r.Put("/{id}", s.updateBlog(false))
		r.Patch("/{id}", s.updateBlog(true))
		r.Delete("/{id}", s.deleteBlog)
	})

	return r
}

func (s *Server) listBlogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r, cms.KindBlog)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	blogs, err := s.service.ListBlogs(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]*BlogResponse, 0, len(blogs))
	for _, b := range blogs {
		item, err := s.blogResponse(r.Context(), b)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp = append(resp, item)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getBlog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	blog, err := s.service.GetBlog(r.Context(), roleOf(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderBlog(w, r, http.StatusOK, blog)
}

func (s *Server) getBlogBySlug(w http.ResponseWriter, r *http.Request) {
	blog, err := s.service.GetBlogBySlug(r.Context(), roleOf(r), chi.URLParam(r, "slug"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.renderBlog(w, r, http.StatusOK, blog)
}

func (s *Server) createBlog(w http.ResponseWriter, r *http.Request) {
	var in cms.BlogInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}

	blog, err := s.service.CreateBlog(r.Context(), cms.CreateBlogRequest{Input: in})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Blog created", "id", blog.ID, "slug", blog.Slug)
	s.renderBlog(w, r, http.StatusCreated, blog)
}

func (s *Server) updateBlog(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var in cms.BlogInput
		if err := decodeJSON(r, &in); err != nil {
			s.writeError(w, r, err)
			return
		}

		blog, err := s.service.UpdateBlog(r.Context(), cms.UpdateBlogRequest{ID: id, Input: in, Partial: partial})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.renderBlog(w, r, http.StatusOK, blog)
	}
}

func (s *Server) deleteBlog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.DeleteBlog(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Blog deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renderBlog(w http.ResponseWriter, r *http.Request, status int, blog *cms.Blog) {
	resp, err := s.blogResponse(r.Context(), blog)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, status, resp)
}
