package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/navikt/roomwait/internal/api"
	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/repository/memory"
)

const testToken = "test-token"

func setupServer(t *testing.T) (*httptest.Server, *memory.Repository) {
	t.Helper()
	repo := memory.NewRepository()
	mux := api.SetupRoutes(repo, zap.NewNop(), testToken)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, repo
}

func doRequest(t *testing.T, method, url string, body []byte, authorized bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIRejectsMissingOrWrongToken(t *testing.T) {
	server, _ := setupServer(t)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/rooms", nil, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong")
	wrongResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer wrongResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, wrongResp.StatusCode)
}

func TestHealthEndpointsAreOpen(t *testing.T) {
	server, _ := setupServer(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := doRequest(t, http.MethodGet, server.URL+path, nil, false)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestListRoomsIncludesWaitlists(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	require.NoError(t, repo.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "a@example.com", Name: "Alice", RoomID: room.ID}))
	require.NoError(t, repo.JoinWaitlist(ctx, &models.WaitlistEntry{Email: "b@example.com", Name: "Bob", RoomID: room.ID}))

	resp := doRequest(t, http.MethodGet, server.URL+"/api/rooms", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []api.RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "A101", rooms[0].Name)
	require.Len(t, rooms[0].Waiting, 2)
	assert.Equal(t, "Alice", rooms[0].Waiting[0].Name, "waitlist is ordered by entry id")
	assert.Equal(t, "Bob", rooms[0].Waiting[1].Name)
}

func TestJoinWaitlist(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))

	body := []byte(`{"email":"eve@example.com","name":"Eve"}`)
	url := fmt.Sprintf("%s/api/rooms/%d/waitlist", server.URL, room.ID)
	resp := doRequest(t, http.MethodPost, url, body, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entry models.WaitlistEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.NotZero(t, entry.ID)
	assert.Equal(t, room.ID, entry.RoomID)

	entries, err := repo.ListWaitlist(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJoinWaitlistValidation(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))

	url := fmt.Sprintf("%s/api/rooms/%d/waitlist", server.URL, room.ID)
	resp := doRequest(t, http.MethodPost, url, []byte(`{"email":"","name":""}`), true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, server.URL+"/api/rooms/999/waitlist",
		[]byte(`{"email":"a@example.com","name":"Alice"}`), true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLeaveWaitlist(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	entry := &models.WaitlistEntry{Email: "a@example.com", Name: "Alice", RoomID: room.ID}
	require.NoError(t, repo.JoinWaitlist(ctx, entry))

	url := fmt.Sprintf("%s/api/waitlist/%d", server.URL, entry.ID)
	resp := doRequest(t, http.MethodDelete, url, nil, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, url, nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWaitlistEntry(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	entry := &models.WaitlistEntry{Email: "a@example.com", Name: "Alice", RoomID: room.ID}
	require.NoError(t, repo.JoinWaitlist(ctx, entry))

	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/api/waitlist/%d", server.URL, entry.ID), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.WaitlistEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "a@example.com", got.Email)
}

func TestCancelRoom(t *testing.T) {
	server, repo := setupServer(t)
	ctx := context.Background()

	room := &models.Room{Name: "A101"}
	require.NoError(t, repo.CreateRoom(ctx, room))
	require.NoError(t, repo.SetReservation(ctx, room.ID, models.Reservation{Start: 100, End: 5_000_000, Organizer: "Bob"}))

	url := fmt.Sprintf("%s/api/rooms/%d/cancel", server.URL, room.ID)
	resp := doRequest(t, http.MethodPost, url, nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.False(t, got.Busy)
	assert.Nil(t, got.Organizer)

	stored, err := repo.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.Busy)
	assert.True(t, stored.Consistent())

	resp = doRequest(t, http.MethodPost, server.URL+"/api/rooms/999/cancel", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidRoomID(t *testing.T) {
	server, _ := setupServer(t)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/rooms/abc", nil, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
