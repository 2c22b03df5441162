//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_Locate(t *testing.T) {
	c := smokeClient(t)

	loc, ok, err := c.Locate(context.Background(), "DEU", "Germany")
	require.NoError(t, err)
	require.True(t, ok)

	assert.InDelta(t, 51.0, loc.Lat, 3, "lat should be inside Germany")
	assert.InDelta(t, 10.0, loc.Lon, 4, "lon should be inside Germany")
}

func TestSmoke_Locate_Aggregate(t *testing.T) {
	c := smokeClient(t)

	// Fuzzy matching may still return a country for an aggregate name, so only
	// check the call is handled without error.
	_, _, err := c.Locate(context.Background(), "HIC", "High income")
	require.NoError(t, err)
}

func TestSmoke_CachedLocator(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedLocator(c, 10, observability.NewMetricsForTesting())

	l1, ok, err := cached.Locate(context.Background(), "FRA", "France")
	require.NoError(t, err)
	require.True(t, ok)

	l2, ok, err := cached.Locate(context.Background(), "FRA", "France")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, l1, l2)
}
