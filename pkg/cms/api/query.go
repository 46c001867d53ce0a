package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
)

// parseListQuery reads the list filters for kind from the query string.
// Blog-only filters are ignored for research.
func parseListQuery(r *http.Request, kind cms.Kind) (cms.ListQuery, error) {
	values := r.URL.Query()
	q := cms.ListQuery{
		Role:   roleOf(r),
		Search: strings.TrimSpace(values.Get("search")),
	}
	errs := validation.Errors{}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status := cms.Status(raw)
		q.Status = &status
	}

	var err error
	if q.Ordering, err = cms.ParseOrdering(kind, values.Get("ordering")); err != nil {
		return q, err
	}

	q.Limit, errs["limit"] = queryInt(values.Get("limit"))
	q.Offset, errs["offset"] = queryInt(values.Get("offset"))
	q.CreatedAfter, errs["created_after"] = queryTime(values.Get("created_after"), false)
	q.CreatedBefore, errs["created_before"] = queryTime(values.Get("created_before"), true)

	if kind == cms.KindBlog {
		if raw := strings.TrimSpace(values.Get("author")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				errs["author"] = errors.New("Select a valid choice. That choice is not one of the available choices.")
			} else {
				q.AuthorID = &id
			}
		}
		q.PublishedAfter, errs["published_after"] = queryTime(values.Get("published_after"), false)
		q.PublishedBefore, errs["published_before"] = queryTime(values.Get("published_before"), true)
	}

	if err := cms.AsValidationError(errs.Filter()); err != nil {
		return q, err
	}
	return q, nil
}

func parseImageQuery(r *http.Request) (cms.ImageQuery, error) {
	var q cms.ImageQuery
	errs := validation.Errors{}
	q.Limit, errs["limit"] = queryInt(r.URL.Query().Get("limit"))
	q.Offset, errs["offset"] = queryInt(r.URL.Query().Get("offset"))
	if err := cms.AsValidationError(errs.Filter()); err != nil {
		return q, err
	}
	return q, nil
}

func queryInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("A valid non-negative integer is required.")
	}
	return n, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func queryTime(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, errors.New("Enter a valid date/time.")
	}
	if upper {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return &d, nil
}

func pathID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errNotFound
	}
	return id, nil
}
