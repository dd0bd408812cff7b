package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Priya8975/object-sync-pipeline/internal/domain"
	"github.com/goccy/go-json"
)

// HTTPObjectClient writes objects through another pipeline instance's object
// store API instead of a local database. Used when objectStoreEndpoint is
// configured, so a fetcher-only deployment can feed a remote store.
type HTTPObjectClient struct {
	endpoint string
	client   *http.Client
}

func NewHTTPObjectClient(endpoint string) *HTTPObjectClient {
	return &HTTPObjectClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type putObjectResponse struct {
	domain.StoredObject
	Changed bool `json:"changed"`
}

// PutObject uploads a payload via PUT /objects/{bucket}/{key}.
func (c *HTTPObjectClient) PutObject(ctx context.Context, bucket, key string, payload []byte) (*domain.StoredObject, bool, error) {
	u := fmt.Sprintf("%s/objects/%s/%s", c.endpoint, url.PathEscape(bucket), escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("building put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("putting object %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("object store rejected %s/%s: %s: %s", bucket, key, resp.Status, body)
	}

	var out putObjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decoding put response: %w", err)
	}
	return &out.StoredObject, out.Changed, nil
}

// escapeKey escapes each path segment but keeps the slashes that structure
// object keys.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
