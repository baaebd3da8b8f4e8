package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 4 << 10

// accessToken runs a client-credentials style exchange through the given HTTP client.
func accessToken(ctx context.Context, httpClient *http.Client, cfg clientcredentials.Config) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if tok.AccessToken == "" {
		return "", ErrAuthentication
	}
	return tok.AccessToken, nil
}

// getJSON performs an authenticated GET and decodes the body as a JSON object.
// A body that is not a JSON object fails with ErrFormat.
func getJSON(ctx context.Context, httpClient *http.Client, url, token string) (map[string]any, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("attendance request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read attendance response: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil || out == nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: %s: %s", ErrFormat, resp.Status, truncate(body))
	}
	return out, resp.StatusCode, nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "... (truncated)"
	}
	return string(b)
}
