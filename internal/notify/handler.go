package notify

import (
	"net/http"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/aliuyar1234/projectportal/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"nhooyr.io/websocket"
)

// ServeWS handles GET /ws/{user_id}. Browsers cannot set headers on a
// WebSocket upgrade, so the bearer token may also come from ?token=. The
// token must belong to the user in the path.
func ServeWS(hub *Hub, jwtSecret string, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validation.ParseID("user_id", chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid user_id")
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			token = auth.BearerToken(r)
		}
		if token == "" {
			apperrors.WriteUnauthorized(w, r, "Missing token")
			return
		}

		claims, err := auth.ValidateToken(token, jwtSecret)
		if err != nil {
			apperrors.WriteUnauthorized(w, r, "Invalid or expired token")
			return
		}
		if claims.UserID != userID {
			apperrors.WriteForbidden(w, r, "Token does not match user")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("WebSocket accept failed")
			return
		}

		client := NewClient(conn, userID)
		hub.Register(client)
		defer hub.Unregister(client)

		ctx := r.Context()
		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}
}
