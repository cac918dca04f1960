// Package source fetches the externally observed occupancy snapshot
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/navikt/roomwait/internal/config"
	"github.com/navikt/roomwait/internal/models"
)

// ErrUnavailable signals that no snapshot could be obtained this tick.
// Callers must treat it as "no information" and leave room state alone.
var ErrUnavailable = errors.New("occupancy source unavailable")

// RoomReport is one room as reported by the occupancy source.
// Appointments[0], when present, is the current or next reservation.
type RoomReport struct {
	Name         string               `json:"Name"`
	Busy         bool                 `json:"busy"`
	Appointments []models.Reservation `json:"Appointments"`
}

// Current returns the report's current reservation, or false if none was reported
func (r RoomReport) Current() (models.Reservation, bool) {
	if len(r.Appointments) == 0 {
		return models.Reservation{}, false
	}
	return r.Appointments[0], true
}

// Client fetches occupancy snapshots over HTTP
type Client struct {
	url        string
	token      string
	cookie     string
	httpClient *http.Client
}

// NewClient creates a client for the configured occupancy source endpoint
func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		url:    cfg.URL,
		token:  cfg.Token,
		cookie: cfg.Cookie,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchSnapshot retrieves the currently observed state of all known rooms.
// Any transport failure, non-success status or undecodable body is reported
// as ErrUnavailable.
func (c *Client) FetchSnapshot(ctx context.Context) ([]RoomReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}

	var reports []RoomReport
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("%w: decoding snapshot: %v", ErrUnavailable, err)
	}

	return reports, nil
}
