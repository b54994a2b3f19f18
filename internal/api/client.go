package api

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
)

// DefaultBaseURL is used when no backend URL has been configured.
const DefaultBaseURL = "https://localhost:7288"

const requestTimeout = 30 * time.Second

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Message string
	Body    map[string]any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d", e.Status)
}

// Describe renders an error in operator-facing terms.
func Describe(err error) string {
	if err == nil {
		return "Unknown error"
	}
	apiErr, ok := err.(*Error)
	if !ok {
		if strings.Contains(err.Error(), "connection refused") {
			return "Network error - check API URL and connection"
		}
		return err.Error()
	}
	switch {
	case apiErr.Status == http.StatusUnauthorized:
		return "Unauthorized - check your authentication token"
	case apiErr.Status == http.StatusForbidden:
		return "Forbidden - you don't have permission"
	case apiErr.Status == http.StatusNotFound:
		return "Not found - check the parameters"
	case apiErr.Status >= 500:
		return fmt.Sprintf("Server error (%d)", apiErr.Status)
	}
	return apiErr.Error()
}

// Client executes registry endpoints against the session backend.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// NewClient creates a client for the backend at baseURL. An empty baseURL
// selects DefaultBaseURL; authToken may be empty for unauthenticated calls.
func NewClient(baseURL, authToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// Do executes an endpoint with the given parameter values. Path parameters
// are substituted into the path; body parameters are sent as a JSON object
// on non-GET requests. The response body is decoded as JSON when possible,
// otherwise wrapped as {"rawText": ...}.
func (c *Client) Do(ctx context.Context, ep Endpoint, params map[string]any) (map[string]any, error) {
	path := ep.Path
	for _, name := range ep.PathParams {
		v, ok := params[name]
		if !ok || v == nil {
			return nil, fmt.Errorf("missing path parameter %q", name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprintf("%v", v)))
	}

	var body io.Reader
	if ep.Method != http.MethodGet && len(ep.BodyParams) > 0 {
		payload := make(map[string]any, len(ep.BodyParams))
		for _, name := range ep.BodyParams {
			if v, ok := params[name]; ok && v != nil {
				payload[name] = v
			}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		decoded = map[string]any{"rawText": string(data)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := decoded["message"].(string)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Message: message, Body: decoded}
	}

	return decoded, nil
}

// ExtractToken pulls a token object out of a response by its (possibly
// dotted) field path, e.g. "messagingTokenRequest" or "data.token".
// Returns nil when the field is absent or not an object path.
func ExtractToken(response map[string]any, tokenField string) any {
	if tokenField == "" || response == nil {
		return nil
	}

	var value any = response
	for _, field := range strings.Split(tokenField, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = obj[field]
	}
	return value
}
