package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistantServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestAsk_ReturnsRankedDocuments(t *testing.T) {
	client := newAssistantServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req askRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "smart irrigation", req.Query)
		assert.Equal(t, 2, req.Limit)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Answer{Documents: []Document{
			{ID: "1", Title: "Drip control", Score: 0.9},
			{ID: "2", Title: "Soil sensing", Score: 0.7},
			{ID: "3", Title: "Weather feed", Score: 0.4},
		}})
	})

	answer, err := client.Ask(context.Background(), "smart irrigation", 2)
	require.NoError(t, err)
	require.Len(t, answer.Documents, 2)
	require.Equal(t, "Drip control", answer.Documents[0].Title)
}

func TestAsk_ServerErrorIsUnavailable(t *testing.T) {
	client := newAssistantServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Ask(context.Background(), "q", 5)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAsk_TimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, 50*time.Millisecond)
	_, err := client.Ask(context.Background(), "q", 5)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestAsk_NotConfigured(t *testing.T) {
	client := NewClient("", time.Second)
	require.False(t, client.Configured())

	_, err := client.Ask(context.Background(), "q", 5)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestHandleAsk(t *testing.T) {
	client := newAssistantServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Answer{Documents: []Document{{ID: "1"}}})
	})
	h := HandleAsk(client)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/chat/ask", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, post(`{"query":"past projects on drones"}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"query":"   "}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"query":"x","limit":99}`).Code)
	require.Equal(t, http.StatusBadRequest, post(`{"query":"x","extra":1}`).Code)

	rec := httptest.NewRecorder()
	HandleAsk(NewClient("", time.Second)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat/ask", bytes.NewBufferString(`{"query":"x"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
