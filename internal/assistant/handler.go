package assistant

import (
	"errors"
	"net/http"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/validation"
)

const defaultAskLimit = 5

type AskRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// HandleAsk handles POST /chat/ask
func HandleAsk(client *Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !client.Configured() {
			apperrors.WriteServiceUnavailable(w, r, "Assistant is not configured")
			return
		}

		var req AskRequest
		if err := validation.DecodeJSON(w, r, &req); err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid request body")
			return
		}
		query, err := validation.NormalizeQuery(req.Query)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid query")
			return
		}
		limit, err := validation.NormalizeLimit(req.Limit, defaultAskLimit)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid limit")
			return
		}

		answer, err := client.Ask(r.Context(), query, limit)
		if err != nil {
			if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotConfigured) {
				apperrors.WriteServiceUnavailable(w, r, "Assistant is unavailable")
				return
			}
			apperrors.WriteServiceError(w, r, err, "Failed to query assistant")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, answer)
	}
}
