package handler

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var validate = validator.New()

func accountIDFromPath(r *http.Request) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, ErrAccountNotFound
	}
	return id, nil
}

// pagination reads limit and offset, clamping limit to maxPageLimit.
func pagination(r *http.Request) (limit, offset int, fields []FieldError) {
	limit, offset = defaultPageLimit, 0
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fields = append(fields, FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			limit = min(n, maxPageLimit)
		}
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		} else {
			offset = n
		}
	}
	return limit, offset, fields
}

func isEmail(s string) bool {
	return validate.Var(s, "email") == nil
}

func isURL(s string) bool {
	return validate.Var(s, "url") == nil
}
