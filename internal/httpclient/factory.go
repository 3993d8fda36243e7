// Package httpclient builds the HTTP clients used to talk to the
// authorization endpoint.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// ClientConfig configures a probe client.
type ClientConfig struct {
	// Timeout of zero leaves per-request timing to the transport defaults.
	Timeout time.Duration
	// MaxConnsPerHost caps concurrent connections to the endpoint; usually
	// the worker count.
	MaxConnsPerHost int
	FollowRedirects bool
}

// DefaultConfig returns the configuration for a pool of the given size.
func DefaultConfig(workers int) ClientConfig {
	return ClientConfig{
		MaxConnsPerHost: workers,
		FollowRedirects: false,
	}
}

// NewProbeClient creates an HTTP client tuned for many small concurrent
// POSTs against one host.
func NewProbeClient(config ClientConfig) (*http.Client, error) {
	idle := config.MaxConnsPerHost
	if idle < 2 {
		idle = 2
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to enable HTTP/2: %w", err)
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// DoWithContext performs an HTTP request bound to ctx.
func DoWithContext(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, err
	}

	return resp, nil
}

// CloseBody drains and closes a response body so the connection can be
// reused. Unclosed bodies leak pooled connections.
func CloseBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("failed to close response body: %w", err)
	}
	return nil
}
