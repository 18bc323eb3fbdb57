package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/y0ug/glanceauth/pkg/auth"
)

// DeliverLink forwards a deep link to the instance listening at baseURL.
func DeliverLink(ctx context.Context, baseURL, link string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/links", strings.NewReader(link))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body auth.HttpResp
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			return fmt.Errorf("deliver link: %s (status %d)", body.Message, resp.StatusCode)
		}
		return fmt.Errorf("deliver link: unexpected status %d", resp.StatusCode)
	}
	return nil
}
