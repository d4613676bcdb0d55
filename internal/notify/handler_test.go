package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const testSecret = "test-secret-that-is-long-enough-123456"

func newWSServer(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(16)
	runHub(t, hub)

	r := chi.NewRouter()
	r.Get("/ws/{user_id}", ServeWS(hub, testSecret, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestServeWS_PushesEventsAndAnswersPing(t *testing.T) {
	hub, base := newWSServer(t)
	userID := uuid.New()
	token, err := auth.CreateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, base+"/ws/"+userID.String()+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return hub.Connected(userID) }, 2*time.Second, 10*time.Millisecond)

	inviteID, senderID := uuid.New(), uuid.New()
	NewTeamNotifier(hub).InviteReceived(userID, inviteID, senderID)

	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	require.Equal(t, EventTypeInviteReceived, evt.Type)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("ping")))
	var pong Event
	require.NoError(t, wsjson.Read(ctx, conn, &pong))
	require.Equal(t, EventTypePong, pong.Type)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return !hub.Connected(userID) }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_RejectsForeignToken(t *testing.T) {
	_, base := newWSServer(t)
	token, err := auth.CreateToken(uuid.New(), testSecret, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, base+"/ws/"+uuid.NewString()+"?token="+token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWS_RequiresToken(t *testing.T) {
	_, base := newWSServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, base+"/ws/"+uuid.NewString(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, base+"/ws/"+uuid.NewString()+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
