// Package delivery sends encrypted push bodies to the collector over HTTP.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxResponse caps how much of the collector's reply is read.
const maxResponse = 1 << 20

type DeliveryError struct {
	URL        string
	StatusCode int // 0 for transport failures
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver to %s: status %d: %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("deliver to %s: %v", e.URL, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Client struct {
	HTTP      *http.Client
	UserAgent string
}

func NewClient(userAgent string) *Client {
	return &Client{HTTP: &http.Client{}, UserAgent: userAgent}
}

// Deliver POSTs body as JSON and returns the response body as text. Any
// non-2xx status is a *DeliveryError.
func (c *Client) Deliver(ctx context.Context, url string, body []byte, header http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &DeliveryError{URL: url, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", &DeliveryError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", &DeliveryError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return string(b), &DeliveryError{URL: url, StatusCode: resp.StatusCode, Body: string(b), Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	return string(b), nil
}
