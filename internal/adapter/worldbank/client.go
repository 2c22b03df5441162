package worldbank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/domain"
)

// DefaultBaseURL is the public World Bank API host.
const DefaultBaseURL = "https://api.worldbank.org"

// maxErrorBody bounds how much of a failed response is copied into the error.
const maxErrorBody = 1024

// Client fetches indicator series from the World Bank API v2.
type Client struct {
	baseURL    string
	perPage    int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a World Bank client. Every request is bounded by timeout.
func NewClient(baseURL string, perPage int, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		perPage: perPage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch downloads the first page of an indicator for all countries. The
// records are returned undecoded; only the response envelope is validated.
func (c *Client) Fetch(ctx context.Context, indicator string) (domain.Payload, error) {
	u := fmt.Sprintf("%s/v2/country/all/indicator/%s", c.baseURL, url.PathEscape(indicator))
	params := url.Values{
		"format":   {"json"},
		"per_page": {strconv.Itoa(c.perPage)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("fetching indicator", "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("indicator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Payload{}, fmt.Errorf("world bank API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("read response: %w", err)
	}

	payload, err := DecodePayload(body)
	if err != nil {
		return domain.Payload{}, err
	}

	c.logger.Info("indicator fetched",
		"indicator", indicator,
		"bytes", len(body),
		"total", payload.Meta.Total,
		"pages", payload.Meta.Pages,
	)
	return payload, nil
}

// DecodePayload splits the two-element [meta, records] envelope of a
// response body.
func DecodePayload(body []byte) (domain.Payload, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return domain.Payload{}, fmt.Errorf("decode response: expected a JSON array: %w", err)
	}

	if len(parts) == 1 {
		var apiErr APIError
		if err := json.Unmarshal(parts[0], &apiErr); err == nil && len(apiErr.Messages) > 0 {
			return domain.Payload{}, &apiErr
		}
	}
	if len(parts) < 2 {
		return domain.Payload{}, fmt.Errorf("decode response: got %d elements, want 2", len(parts))
	}

	var meta domain.PageMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Meta: meta, Records: parts[1]}, nil
}

// APIError is the error envelope the API returns with a 200 status, for
// example for an unknown indicator code.
type APIError struct {
	Messages []Message `json:"message"`
}

// Message is one entry of an APIError.
type Message struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (e *APIError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, fmt.Sprintf("%s %s: %s", m.ID, m.Key, m.Value))
	}
	return "world bank API error: " + strings.Join(parts, "; ")
}
