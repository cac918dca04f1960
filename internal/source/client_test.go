package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
	"github.com/navikt/roomwait/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"Name":"A101","busy":true,"Appointments":[{"Start":100,"End":200,"Organizer":"Bob"}]},
			{"Name":"B202","busy":false,"Appointments":[]}
		]`))
	}))
	defer server.Close()

	client := source.NewClient(config.SourceConfig{URL: server.URL, Token: "secret", Cookie: "session=abc"})
	reports, err := client.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, "A101", reports[0].Name)
	assert.True(t, reports[0].Busy)
	current, ok := reports[0].Current()
	require.True(t, ok)
	assert.Equal(t, models.Reservation{Start: 100, End: 200, Organizer: "Bob"}, current)

	assert.False(t, reports[1].Busy)
	_, ok = reports[1].Current()
	assert.False(t, ok)
}

func TestFetchSnapshotNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := source.NewClient(config.SourceConfig{URL: server.URL})
	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, source.ErrUnavailable)
}

func TestFetchSnapshotNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := source.NewClient(config.SourceConfig{URL: server.URL})
	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, source.ErrUnavailable)
}

func TestFetchSnapshotMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	client := source.NewClient(config.SourceConfig{URL: server.URL})
	_, err := client.FetchSnapshot(context.Background())
	assert.ErrorIs(t, err, source.ErrUnavailable)
}
