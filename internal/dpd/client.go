// Package dpd provides the HTTP client for the SDP Data Product Dashboard API.
package dpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ska-telescope/ska-pst-send/internal/logging"
)

// API paths and the search term of the data product list response.
const (
	apiReindexDataProducts = "reindexdataproducts"
	apiDataProductList     = "dataproductlist"
	apiSearchTerm          = "metadata_file"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client interacts with the Data Product Dashboard REST API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the dashboard at the given endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoint returns the configured API endpoint.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// get performs a GET request against path and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.endpoint + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("HTTP GET %s", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	c.logger.Debug("HTTP GET %s -> %d (%d bytes)", url, resp.StatusCode, len(body))

	return body, nil
}

// ReindexDataProducts asks the dashboard to reindex its data products.
func (c *Client) ReindexDataProducts(ctx context.Context) error {
	c.logger.Debug("calling DPD reindex dataproducts API")
	if _, err := c.get(ctx, apiReindexDataProducts); err != nil {
		return fmt.Errorf("reindex data products: %w", err)
	}
	return nil
}

// MetadataExists reports whether the dashboard index contains a data product
// whose metadata_file equals searchValue.
func (c *Client) MetadataExists(ctx context.Context, searchValue string) (bool, error) {
	body, err := c.get(ctx, apiDataProductList)
	if err != nil {
		return false, fmt.Errorf("search data products: %w", err)
	}

	var metadataList []map[string]interface{}
	if err := json.Unmarshal(body, &metadataList); err != nil {
		return false, fmt.Errorf("decode data product list: %w", err)
	}

	for _, entry := range metadataList {
		if value, ok := entry[apiSearchTerm]; ok && value == searchValue {
			c.logger.Debug("metadata found=%v", entry)
			return true, nil
		}
	}

	c.logger.Debug("metadata %s not found in %d data products", searchValue, len(metadataList))
	return false, nil
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}

// IsHTTPError checks if an error is an HTTPError and returns it.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// IsNotFound checks if the error is a 404 Not Found.
func IsNotFound(err error) bool {
	if httpErr, ok := IsHTTPError(err); ok {
		return httpErr.StatusCode == http.StatusNotFound
	}
	return false
}
