package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/google/uuid"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 64 * 1024

const (
	MaxQueryLength = 2000
	MaxAskLimit    = 20
)

var (
	ErrInvalidBody   = apperrors.Validation("Invalid request body")
	ErrEmptyQuery    = apperrors.Validation("Query is required")
	ErrQueryTooLong  = apperrors.Validation(fmt.Sprintf("Query must be at most %d characters", MaxQueryLength))
	ErrInvalidLimit  = apperrors.Validation(fmt.Sprintf("Limit must be between 1 and %d", MaxAskLimit))
	errInvalidFormat = apperrors.Validation("Invalid id")
)

// ParseID parses a user, invite, group or project id. field names the value
// in the error message, e.g. "receiver_id".
func ParseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errInvalidFormat.WithMessage("Invalid %s", field)
	}
	return id, nil
}

// DecodeJSON reads a bounded JSON body into dst. Unknown fields are rejected
// so that typos in field names surface as 400s.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrInvalidBody.WithMessage("Request body is required")
		}
		return ErrInvalidBody
	}
	return nil
}

// NormalizeQuery trims a free-text assistant query and checks its length.
func NormalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return "", ErrQueryTooLong
	}
	return query, nil
}

// NormalizeLimit defaults a zero limit and rejects values out of range.
func NormalizeLimit(limit, fallback int) (int, error) {
	if limit == 0 {
		return fallback, nil
	}
	if limit < 0 || limit > MaxAskLimit {
		return 0, ErrInvalidLimit
	}
	return limit, nil
}
