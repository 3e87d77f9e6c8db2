package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_FetchRoomSnapshot(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/room1/messages", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "token-a", r.Header.Get(common.AccessTokenHeaderName))
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []models.WireMessage{
				{ID: "m1", RoomID: "room1", SenderID: "u1", Body: "env1", CreatedAt: created},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), "token-a", "refresh-a")
	msgs, err := c.FetchRoomSnapshot(context.Background(), "room1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, created.Equal(msgs[0].CreatedAt))
}

func TestHTTPClient_FetchOlderMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m50", r.URL.Query().Get("before"))
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []models.WireMessage{{ID: "m49"}},
			"has_more": true,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), "t", "")
	msgs, more, err := c.FetchOlderMessages(context.Background(), "room1", "m50", 30)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.True(t, more)
}

func TestHTTPClient_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "corr-1", req.CorrelationID)
		assert.Equal(t, "envelope", req.Body)
		json.NewEncoder(w).Encode(SendAck{MessageID: "m100", CorrelationID: req.CorrelationID})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), "t", "")
	ack, err := c.SendMessage(context.Background(), SendRequest{
		RoomID:        "room1",
		CorrelationID: "corr-1",
		Body:          "envelope",
		Type:          models.MessageTypeText,
	})
	require.NoError(t, err)
	assert.Equal(t, "m100", ack.MessageID)
	assert.Equal(t, "corr-1", ack.CorrelationID)
}

func TestHTTPClient_RefreshesExpiredTokenOnce(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "refresh-old", req["refresh_token"])
			json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "token-new",
				"refresh_token": "refresh-new",
			})
		case "/api/rooms":
			calls++
			if r.Header.Get(common.AccessTokenHeaderName) != "token-new" {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": common.ErrTokenExpired.Error()})
				return
			}
			json.NewEncoder(w).Encode([]models.Room{{ID: "room1"}})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), "token-old", "refresh-old")
	rooms, err := c.FetchRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "token-new", c.AccessToken())
}

func TestHTTPClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, common.ErrUnauthorized},
		{"not found", http.StatusNotFound, ``, common.ErrNotFound},
		{"server error", http.StatusBadGateway, ``, common.ErrTransportUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, srv.Client(), "t", "")
			err := c.DeleteMessage(context.Background(), "room1", "m1")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClient_UnreachableServer(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", http.DefaultClient, "t", "")
	_, err := c.FetchRooms(context.Background())
	require.ErrorIs(t, err, common.ErrTransportUnavailable)
}

func TestHTTPClient_UploadBlob(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get(common.AccessTokenHeaderName))
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		got = b
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewHTTPClient("", srv.Client(), "t", "")
	err := c.UploadBlob(context.Background(), srv.URL+"/blob?sig=abc", []byte("ciphertext"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), got)
}
