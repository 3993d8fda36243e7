package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/httpclient"
)

var (
	authTokenRe = regexp.MustCompile(`(?m)^Auth=(.*)$`)

	ErrNoAuthToken = errors.New("response carries no Auth token")
)

// AccessToken exchanges the client's credential for a short-lived access
// token with the given scope and returns it as an Authorization header value.
// Transport failures are retried with the client's policy.
func (c *Client) AccessToken(ctx context.Context, scope string) (string, error) {
	body := fmt.Sprintf("service=oauth2:%s&Token=%s", scope, c.cfg.Credential)

	var status int
	var text string
	_, err := c.cfg.Retry.Do(ctx, func(attempt int) error {
		s, t, err := c.exchange(ctx, body)
		if err != nil {
			c.logger.Debugw("Token exchange attempt failed", "attempt", attempt, "error", err)
			return err
		}
		status, text = s, t
		return nil
	})
	if err != nil {
		return "", err
	}

	if status != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d", status)
	}

	match := authTokenRe.FindStringSubmatch(text)
	if match == nil {
		return "", ErrNoAuthToken
	}
	return "Bearer " + strings.TrimSpace(match[1]), nil
}

func (c *Client) exchange(ctx context.Context, body string) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, c.cfg.Endpoint, strings.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpclient.DoWithContext(ctx, c.http, req)
	if err != nil {
		return 0, "", err
	}
	defer func() {
		if cerr := httpclient.CloseBody(resp); cerr != nil {
			c.logger.Debugw("Failed to close response body", "error", cerr)
		}
	}()

	data, err := readBody(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(data), nil
}
