// Package answer talks to the question-answering service over HTTP.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrMalformedResponse is returned when the service replies 2xx without a usable answer.
var ErrMalformedResponse = errors.New("malformed answer response")

// StatusError reports a non-2xx reply from the answer service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("answer service status %d", e.Code)
	}
	return fmt.Sprintf("answer service status %d: %s", e.Code, e.Message)
}

// Request is the body of POST /chat.
type Request struct {
	Message string `json:"message"`
}

// Response is the body of a successful POST /chat.
type Response struct {
	Answer *string `json:"answer"`
}

// Client calls POST {baseURL}/chat.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for the service rooted at baseURL. A zero timeout waits indefinitely.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/chat",
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Answer sends question and returns the service's answer text.
func (c *Client) Answer(ctx context.Context, question string) (string, error) {
	payload, err := json.Marshal(Request{Message: question})
	if err != nil {
		return "", fmt.Errorf("encode answer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build answer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call answer service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read answer response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return "", &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Answer == nil {
		return "", fmt.Errorf("%w: answer field missing", ErrMalformedResponse)
	}
	return *out.Answer, nil
}
