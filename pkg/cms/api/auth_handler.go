package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// TokenObtainRequest is the request body for obtaining a token pair
type TokenObtainRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenRefreshRequest is the request body for refreshing an access token
type TokenRefreshRequest struct {
	Refresh string `json:"refresh"`
}

func (s *Server) authRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/token", s.obtainToken)
	r.Post("/token/refresh", s.refreshToken)
	return r
}

func (s *Server) obtainToken(w http.ResponseWriter, r *http.Request) {
	var req TokenObtainRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	err := validation.Errors{
		"username": validation.Validate(req.Username, validation.Required.Error("This field is required.")),
		"password": validation.Validate(req.Password, validation.Required.Error("This field is required.")),
	}.Filter()
	if err := cms.AsValidationError(err); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.auth.Obtain(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pair)
}

func (s *Server) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRefreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Refresh == "" {
		s.writeError(w, r, cms.NewValidationError("refresh", "This field is required."))
		return
	}

	access, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"access": access})
}
