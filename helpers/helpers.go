package helpers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

const userAgent = "marketbus/1.0"

// maxBodySize bounds venue REST responses.
const maxBodySize = 4 << 20

// IntToString converts int64 to string.
func IntToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// ToJsonString converts any value to JSON string.
func ToJsonString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// GetJSON issues a GET and decodes the body into out.
// Transport failures and non-2xx statuses wrap domain.ErrNetwork, undecodable bodies wrap domain.ErrParse.
func GetJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", domain.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s: status %d", domain.ErrNetwork, url, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrParse, url, err)
	}
	return nil
}
