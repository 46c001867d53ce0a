package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/auth"
)

// errorBody is the {"detail": "..."} shape used for non-field errors.
type errorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

var (
	errNotFound    = errors.New("Not found.")
	errServerError = errors.New("A server error occurred.")
)

// badRequestError is a 400 without per-field detail.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

// classify maps err to a status code and response body.
func classify(err error) (int, any) {
	var (
		verr     *cms.ValidationError
		related  *cms.RelatedNotFoundError
		conflict *cms.ConflictError
		badReq   *badRequestError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.FieldMessages()
	case errors.As(err, &related):
		msg := fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", related.ID)
		return http.StatusBadRequest, map[string][]string{related.Field: {msg}}
	case errors.As(err, &badReq):
		return http.StatusBadRequest, errorBody{Detail: badReq.msg}
	case errors.As(err, &conflict):
		return http.StatusConflict, errorBody{Detail: conflict.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Detail: err.Error(), Code: "no_active_account"}
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Detail: err.Error(), Code: "token_not_valid"}
	case errors.Is(err, errNotAuthenticated):
		return http.StatusUnauthorized, errorBody{Detail: err.Error()}
	case errors.Is(err, cms.ErrPermissionDenied):
		return http.StatusForbidden, errorBody{Detail: "You do not have permission to perform this action."}
	case errors.Is(err, cms.ErrNotFound), errors.Is(err, errNotFound):
		return http.StatusNotFound, errorBody{Detail: errNotFound.Error()}
	}
	return http.StatusInternalServerError, errorBody{Detail: errServerError.Error()}
}

// writeError writes the response for err. Server errors are logged at Error
// level, client errors at Debug.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)

	fields := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "request error", fields...)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", fields...)
	}

	writeJSON(w, r, status, body)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// decodeJSON decodes the request body into v. Type mismatches become field
// errors; malformed JSON is a plain 400.
func decodeJSON(r *http.Request, v any) error {
	err := render.DecodeJSON(r.Body, v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return cms.NewValidationError(typeErr.Field, fmt.Sprintf("Incorrect type. Expected %s, but got %s.", typeErr.Type, typeErr.Value))
	}
	var parseErr *time.ParseError
	if errors.As(err, &parseErr) {
		// published_at is the only timestamp clients may write.
		return cms.NewValidationError("published_at", "Datetime has wrong format. Use RFC 3339, e.g. 2024-01-02T15:04:05Z.")
	}
	return &badRequestError{msg: "JSON parse error - " + err.Error()}
}
