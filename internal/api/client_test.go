package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceweek/raceweek/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000/", "secret123")
	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:5000", c.BaseURL())
	assert.Equal(t, "secret123", c.apiKey)
	assert.NotNil(t, c.httpClient)
}

func TestHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthcheck", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, New(server.URL, "").Healthcheck(context.Background()))
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	require.Error(t, New(url, "").Healthcheck(context.Background()))
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := New(server.URL, "").Healthcheck(context.Background())
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Empty(t, apiErr.Reason)
}

func TestCreateRoom_SendsKeyAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "k3y", r.Header.Get(APIKeyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, core.ModeQuick, req.Mode)

		_ = json.NewEncoder(w).Encode(Membership{
			Room:   core.Room{ID: "r1", Code: "ABCD"},
			Player: core.Player{ID: "p1", Username: "alice"},
		})
	}))
	defer server.Close()

	m, err := New(server.URL, "k3y").CreateRoom(context.Background(), "alice", core.ModeQuick)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", m.Room.Code)
	assert.Equal(t, "p1", m.Player.ID)
}

func TestDecodesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Reason: "room_full", Message: "room is full"})
	}))
	defer server.Close()

	_, err := New(server.URL, "").JoinRoom(context.Background(), "ABCD", "bob")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "room_full", apiErr.Reason)
	assert.Equal(t, "room_full: room is full (status 409)", apiErr.Error())
}

func TestChat_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rooms/r%201/chat", r.URL.EscapedPath())
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":"m1","message":"hi"}]`))
	}))
	defer server.Close()

	msgs, err := New(server.URL, "").Chat(context.Background(), "r 1", 5)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Message)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/rooms/r1/ws", New("http://localhost:8080", "").StreamURL("r1"))
	assert.Equal(t, "wss://race.example/rooms/r1/ws", New("https://race.example/", "").StreamURL("r1"))
}
