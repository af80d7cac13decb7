// Package graphql implements the transport the client speaks to the
// QL-CHAT server: plain POST requests for queries and mutations, and a
// graphql-transport-ws channel for subscriptions.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer credential for outgoing requests.
// It returns "" when the client is unauthenticated.
type TokenSource func() string

// Client executes GraphQL queries and mutations over HTTP.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client

	token TokenSource
	log   zerolog.Logger
}

// NewClient creates a client for the given endpoint. Every request is
// bounded by timeout unless the caller's context is stricter.
func NewClient(endpoint string, token TokenSource, timeout time.Duration, log zerolog.Logger) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: timeout},
		token:      token,
		log:        log,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Do posts an operation and decodes the response data into out. Failures
// come back classified; see errors.go for the taxonomy.
func (c *Client) Do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("graphql: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graphql: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("graphql request completed")

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return AccessDenied(http.StatusText(resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return NotFound("endpoint not found")
	case resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, Message: fmt.Sprintf("server error %d", resp.StatusCode)}
	}

	var decoded gqlResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Transient(fmt.Errorf("graphql: decode response: %w", err))
	}

	if len(decoded.Errors) > 0 {
		first := decoded.Errors[0]
		return classify(first.Message, first.Extensions.Code)
	}

	if out != nil {
		if err := json.Unmarshal(decoded.Data, out); err != nil {
			return Transient(fmt.Errorf("graphql: decode data: %w", err))
		}
	}
	return nil
}
