package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/couchcryptid/trade-indicators/internal/observability"
)

// DefaultBaseURL is the Mapbox forward geocoding endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

const maxErrorBody = 512

// Client implements domain.Locator by forward-geocoding country names with
// the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: DefaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Locate geocodes the country name; iso3 is only logged. Aggregates such as
// "European Union" usually resolve to nothing, reported as ok=false.
func (c *Client) Locate(ctx context.Context, iso3, name string) (domain.Location, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Location{}, false, nil
	}

	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(name))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"country"},
	}

	start := time.Now()
	f, found, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.LocateAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LocateRequests.WithLabelValues("error").Inc()
		return domain.Location{}, false, err
	}
	if !found || len(f.Center) != 2 {
		c.metrics.LocateRequests.WithLabelValues("not_found").Inc()
		c.logger.Debug("country not geocoded", "iso3", iso3, "country", name)
		return domain.Location{}, false, nil
	}

	c.metrics.LocateRequests.WithLabelValues("success").Inc()
	// Mapbox uses lon,lat order.
	return domain.Location{
		Lat:    f.Center[1],
		Lon:    f.Center[0],
		Source: domain.LocationSourceGeocoder,
	}, true, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (feature, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return feature{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return feature{}, false, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return feature{}, false, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return feature{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(mapboxResp.Features) == 0 {
		return feature{}, false, nil
	}
	return mapboxResp.Features[0], true, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
