// Package storage is a client for a Supabase-compatible object storage API
// holding session recordings.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
)

const serviceName = "storage"

type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewClient creates a storage client for one bucket. Calls fail with a
// configuration error when baseURL or serviceKey is empty.
func NewClient(baseURL, serviceKey, bucket string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		bucket:     bucket,
		// recording downloads are the slowest call; callers bound the rest
		httpClient: &http.Client{Timeout: config.RecordingDownloadTimeout},
	}
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) objectPath(prefix, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/storage/v1/object%s/%s/%s", c.baseURL, prefix, url.PathEscape(c.bucket), strings.Join(parts, "/"))
}

// ObjectURL is the authenticated (non-signed) location of key.
func (c *Client) ObjectURL(key string) string {
	return c.objectPath("/authenticated", key)
}

func (c *Client) do(ctx context.Context, method, target, contentType string, body io.Reader, extra http.Header) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, apperrors.Configuration("STORAGE_URL")
	}
	if c.serviceKey == "" {
		return nil, apperrors.Configuration("STORAGE_SERVICE_KEY")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range extra {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Upstream(serviceName, fmt.Errorf("%s %s: %w", method, target, err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.NotFound("Stored object")
		}
		return nil, apperrors.Upstream(serviceName, fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, msg))
	}
	return resp, nil
}

// Upload writes data under key, replacing any existing object.
func (c *Client) Upload(ctx context.Context, key, contentType string, data []byte) error {
	resp, err := c.do(ctx, http.MethodPost, c.objectPath("", key), contentType, bytes.NewReader(data),
		http.Header{"X-Upsert": []string{"true"}})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Download reads the whole object stored under key.
func (c *Client) Download(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.objectPath("", key), "", nil, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.Upstream(serviceName, fmt.Errorf("reading object: %w", err))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL returns a time-limited public URL for key.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("marshaling sign request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.objectPath("/sign", key), "application/json", bytes.NewReader(body), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.Upstream(serviceName, fmt.Errorf("decoding sign response: %w", err))
	}
	if out.SignedURL == "" {
		return "", apperrors.Upstream(serviceName, fmt.Errorf("empty signed url"))
	}
	if strings.HasPrefix(out.SignedURL, "http") {
		return out.SignedURL, nil
	}
	// Supabase returns a path relative to /storage/v1
	return c.baseURL + "/storage/v1" + out.SignedURL, nil
}
