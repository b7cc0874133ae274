// Package daily talks to the Daily.co REST API for rooms and cloud recordings.
package daily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/edulive/session-knowledge/internal/config"
	apperrors "github.com/edulive/session-knowledge/internal/errors"
)

const serviceName = "daily"

// Client communicates with the Daily REST API.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	downloadClient *http.Client
}

// NewClient creates a Daily client. An empty apiKey is accepted; every call
// then fails with a configuration error.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.ProviderRequestTimeout,
		},
		// bounded by the caller's context instead; recordings can be large
		downloadClient: &http.Client{},
	}
}

type Room struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Privacy string `json:"privacy"`
}

type RoomProperties struct {
	Exp               int64  `json:"exp"`
	MaxParticipants   int    `json:"max_participants"`
	EnableScreenshare bool   `json:"enable_screenshare"`
	EnableRecording   string `json:"enable_recording"`
}

type CreateRoomParams struct {
	Name       string         `json:"name"`
	Privacy    string         `json:"privacy"`
	Properties RoomProperties `json:"properties"`
}

type Recording struct {
	ID       string `json:"id"`
	RoomName string `json:"room_name"`
	Status   string `json:"status"`
	Duration int    `json:"duration"`
	StartTS  int64  `json:"start_ts"`
}

type AccessLink struct {
	DownloadLink string `json:"download_link"`
	Expires      int64  `json:"expires"`
}

type recordingList struct {
	TotalCount int         `json:"total_count"`
	Data       []Recording `json:"data"`
}

// GetRoom returns the room, or nil when it does not exist.
func (c *Client) GetRoom(ctx context.Context, name string) (*Room, error) {
	var room Room
	status, err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(name), nil, &room)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom deletes the room; a missing room is not an error.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	status, err := c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(name), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) CreateRoom(ctx context.Context, params CreateRoomParams) (*Room, error) {
	var room Room
	if _, err := c.do(ctx, http.MethodPost, "/rooms", params, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// StartRecording asks Daily to start cloud recording in a room. It fails while
// the room has no participants.
func (c *Client) StartRecording(ctx context.Context, roomName string) error {
	_, err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomName)+"/recordings/start", map[string]any{}, nil)
	return err
}

// GetRecording returns recording metadata, or nil when Daily does not know it.
func (c *Client) GetRecording(ctx context.Context, id string) (*Recording, error) {
	var rec Recording
	status, err := c.do(ctx, http.MethodGet, "/recordings/"+url.PathEscape(id), nil, &rec)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRecordings returns the recordings of one room, newest first.
func (c *Client) ListRecordings(ctx context.Context, roomName string) ([]Recording, error) {
	var list recordingList
	path := "/recordings?room_name=" + url.QueryEscape(roomName)
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// GetAccessLink returns a time-limited download link for a recording.
func (c *Client) GetAccessLink(ctx context.Context, recordingID string) (*AccessLink, error) {
	var link AccessLink
	if _, err := c.do(ctx, http.MethodGet, "/recordings/"+url.PathEscape(recordingID)+"/access-link", nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// Download fetches a recording from its access link. Links are pre-signed, so
// no credentials are sent. Bodies larger than maxBytes are rejected.
func (c *Client) Download(ctx context.Context, link string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, "", apperrors.Upstream(serviceName, fmt.Errorf("downloading recording: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", apperrors.Upstream(serviceName,
			fmt.Errorf("downloading recording: unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", apperrors.Upstream(serviceName, fmt.Errorf("reading recording: %w", err))
	}
	if int64(len(data)) > maxBytes {
		return nil, "", apperrors.ValidationError(fmt.Sprintf("recording exceeds %d bytes", maxBytes))
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// do performs a JSON request. It returns the HTTP status alongside any error
// so callers can treat 404 specially.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if c.apiKey == "" {
		return 0, apperrors.Configuration("DAILY_API_KEY")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.Upstream(serviceName, fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, apperrors.Upstream(serviceName,
			fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, string(respBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, apperrors.Upstream(serviceName, fmt.Errorf("decoding response: %w", err))
		}
	}
	return resp.StatusCode, nil
}
