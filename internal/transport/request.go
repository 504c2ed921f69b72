package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agentstation/rowsync/pkg/errors"
)

// maxErrorBody caps how much of a failed response ends up in an error message.
const maxErrorBody = 512

// DecodeResponse decodes a JSON response into the target structure. Non-2xx
// responses become errors: the client's ErrorMapper gets the first chance,
// then 429 maps to a RateLimitError and anything else to an APIError.
func (c *Client) DecodeResponse(resp *http.Response, target any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn().Err(err).Str("provider", c.provider).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewTransientError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(resp, body)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", "response", err)
	}
	return nil
}

func (c *Client) responseError(resp *http.Response, body []byte) error {
	if c.mapError != nil {
		if err := c.mapError(resp.StatusCode, resp.Header, body); err != nil {
			return err
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.NewRateLimitError(c.provider, "", RetryAfter(resp.Header))
	}
	msg := string(body)
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	endpoint := ""
	if resp.Request != nil && resp.Request.URL != nil {
		endpoint = resp.Request.URL.Path
	}
	return &errors.APIError{
		Provider:   c.provider,
		StatusCode: resp.StatusCode,
		Message:    msg,
		Endpoint:   endpoint,
	}
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
