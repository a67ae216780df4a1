package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/factory-agent/internal/errors"
)

const factoryPath = "/factory"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves a factory definition by ID.
// A nil definition with a nil error means the source returned no data.
type Fetcher interface {
	GetByID(ctx context.Context, factoryID string) (*Definition, error)
}

// Client wraps the Che factory REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient creates a new factory API client.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "factory_client").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// BaseURL returns the base URL of the factory API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetByID fetches GET {base}/factory/{id}.
func (c *Client) GetByID(ctx context.Context, factoryID string) (*Definition, error) {
	if factoryID == "" {
		return nil, fmt.Errorf("factory id: %w", perrors.ErrInvalidInput)
	}
	endpoint := c.baseURL + factoryPath + "/" + url.PathEscape(factoryID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", endpoint).Msg("fetching factory")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, perrors.NewAPIError("factory", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return decodeJSON(body)
}

func decodeJSON(body []byte) (*Definition, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}
	var def Definition
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &def, nil
}

// NewFetcher picks the repository for a base address: file:// addresses
// are served from disk, anything else goes through the HTTP API.
func NewFetcher(baseURL string, timeout time.Duration, logger zerolog.Logger) Fetcher {
	if dir, ok := strings.CutPrefix(baseURL, "file://"); ok {
		return NewFileStore(dir, logger)
	}
	return NewClient(baseURL, timeout, logger)
}
