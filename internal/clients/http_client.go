package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody caps how much of a failed response body is kept in an HTTPError.
const maxErrorBody = 512

// ErrMalformedResponse wraps decode failures of a collaborator's response.
var ErrMalformedResponse = errors.New("malformed response")

// HTTPError is returned when a collaborator answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// JSONClient sends JSON requests and returns raw response bodies.
type JSONClient struct {
	httpClient *http.Client
	userAgent  string
}

// NewJSONClient creates a client with the given overall request timeout.
func NewJSONClient(timeout time.Duration) *JSONClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &JSONClient{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "route-aggregator/1.0",
	}
}

// Do performs the request. A non-nil body is marshalled as JSON.
func (c *JSONClient) Do(ctx context.Context, method, url string, headers map[string]string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// RequestJSON performs the request and decodes the response into T.
func RequestJSON[T any](ctx context.Context, c *JSONClient, method, url string, headers map[string]string, body any) (T, error) {
	var out T
	raw, err := c.Do(ctx, method, url, headers, body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}
