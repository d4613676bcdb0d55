package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Every response body is one of two envelopes. Handlers pass their payload to
// WriteSuccess, which nests it under data:
//
//	{"request_id": "...", "data": {"message": "...", "invite_id": "..."}}
//	{"error": {"code": "conflict", "message": "...", "request_id": "..."}}
type (
	SuccessResponse struct {
		RequestID string      `json:"request_id"`
		Data      interface{} `json:"data"`
	}

	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
)

// outcome is an HTTP status and the machine code sent with it.
type outcome struct {
	status int
	code   string
}

var (
	badRequest         = outcome{http.StatusBadRequest, "bad_request"}
	unauthorized       = outcome{http.StatusUnauthorized, "unauthorized"}
	forbidden          = outcome{http.StatusForbidden, "forbidden"}
	notFound           = outcome{http.StatusNotFound, "not_found"}
	tooManyRequests    = outcome{http.StatusTooManyRequests, "too_many_requests"}
	internalError      = outcome{http.StatusInternalServerError, "internal_error"}
	serviceUnavailable = outcome{http.StatusServiceUnavailable, "service_unavailable"}
)

// kindOutcomes renders domain errors. A conflict is a 400 like a validation
// failure but keeps its own code.
var kindOutcomes = map[Kind]outcome{
	KindValidation:    badRequest,
	KindConflict:      {http.StatusBadRequest, "conflict"},
	KindNotFound:      notFound,
	KindAuthorization: forbidden,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (o outcome) write(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, o.status, o.code, message)
}

// WriteSuccess writes data inside the success envelope.
func WriteSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, status, SuccessResponse{RequestID: GetRequestID(r.Context()), Data: data})
}

// WriteError writes the error envelope with an explicit status and code.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	}})
}

// WriteServiceError renders err. Domain errors use their kind's outcome and
// message; anything else is logged and reported as a 500 carrying fallback.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		if o, ok := kindOutcomes[appErr.Kind]; ok {
			o.write(w, r, appErr.Message)
			return
		}
	}

	log.Error().
		Err(err).
		Str("request_id", GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg(fallback)
	internalError.write(w, r, fallback)
}

func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	badRequest.write(w, r, message)
}

func WriteUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	unauthorized.write(w, r, message)
}

func WriteForbidden(w http.ResponseWriter, r *http.Request, message string) {
	forbidden.write(w, r, message)
}

func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, message string) {
	tooManyRequests.write(w, r, message)
}

func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	internalError.write(w, r, message)
}

func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	serviceUnavailable.write(w, r, message)
}
