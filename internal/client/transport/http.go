package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/common"
)

// HTTPClient implements API over JSON/HTTP. It carries the access token on
// every request and, on a token-expired response, refreshes once and retries
// the original call.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func NewHTTPClient(baseURL string, hc *http.Client, accessToken, refreshToken string) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:      baseURL,
		http:         hc,
		accessToken:  accessToken,
		refreshToken: refreshToken,
	}
}

// AccessToken returns the current access token (it rotates on refresh).
func (c *HTTPClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *HTTPClient) FetchRooms(ctx context.Context) ([]models.Room, error) {
	var out []models.Room
	if err := c.call(ctx, http.MethodGet, "/api/rooms", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) FetchRoomSnapshot(ctx context.Context, roomID string, limit int) ([]models.WireMessage, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages?limit=%d", url.PathEscape(roomID), limit)
	var out struct {
		Messages []models.WireMessage `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *HTTPClient) FetchOlderMessages(ctx context.Context, roomID, beforeID string, limit int) ([]models.WireMessage, bool, error) {
	path := fmt.Sprintf("/api/rooms/%s/messages?limit=%d&before=%s",
		url.PathEscape(roomID), limit, url.QueryEscape(beforeID))
	var out struct {
		Messages []models.WireMessage `json:"messages"`
		HasMore  bool                 `json:"has_more"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, false, err
	}
	return out.Messages, out.HasMore, nil
}

func (c *HTTPClient) FetchMembers(ctx context.Context, roomID string) ([]models.Member, error) {
	var out []models.Member
	path := fmt.Sprintf("/api/rooms/%s/members", url.PathEscape(roomID))
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateRoom(ctx context.Context, name string, typ models.RoomType) (*RoomGrant, error) {
	req := map[string]any{"name": name, "type": typ}
	var out RoomGrant
	if err := c.call(ctx, http.MethodPost, "/api/rooms", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) JoinRoom(ctx context.Context, roomID string) (*RoomGrant, error) {
	var out RoomGrant
	path := fmt.Sprintf("/api/rooms/%s/join", url.PathEscape(roomID))
	if err := c.call(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) LeaveRoom(ctx context.Context, roomID string) error {
	path := fmt.Sprintf("/api/rooms/%s/leave", url.PathEscape(roomID))
	return c.call(ctx, http.MethodPost, path, nil, nil)
}

func (c *HTTPClient) SendMessage(ctx context.Context, req SendRequest) (*SendAck, error) {
	var out SendAck
	path := fmt.Sprintf("/api/rooms/%s/messages", url.PathEscape(req.RoomID))
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) EditMessage(ctx context.Context, roomID, messageID, body string) error {
	req := map[string]any{"body": body}
	path := fmt.Sprintf("/api/rooms/%s/messages/%s", url.PathEscape(roomID), url.PathEscape(messageID))
	return c.call(ctx, http.MethodPatch, path, req, nil)
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	path := fmt.Sprintf("/api/rooms/%s/messages/%s", url.PathEscape(roomID), url.PathEscape(messageID))
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) React(ctx context.Context, roomID, messageID, emoji string, add bool) error {
	req := map[string]any{"emoji": emoji}
	method := http.MethodPut
	if !add {
		method = http.MethodDelete
	}
	path := fmt.Sprintf("/api/rooms/%s/messages/%s/reactions", url.PathEscape(roomID), url.PathEscape(messageID))
	return c.call(ctx, method, path, req, nil)
}

func (c *HTTPClient) PresignUpload(ctx context.Context, roomID, name string, size int64) (*UploadGrant, error) {
	req := map[string]any{"room_id": roomID, "name": name, "size": size}
	var out UploadGrant
	if err := c.call(ctx, http.MethodPost, "/api/uploads/presign", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadBlob PUTs an encrypted attachment blob to a presigned URL. No auth
// header: the URL itself is the credential.
func (c *HTTPClient) UploadBlob(ctx context.Context, uploadURL string, blob []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(blob))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(blob))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}

// call performs one JSON request. A token-expired 401 triggers a single
// refresh followed by one retry of the original call.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	err := c.do(ctx, method, path, in, out)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrTokenExpired) {
		return err
	}
	if refreshErr := c.refresh(ctx); refreshErr != nil {
		return refreshErr
	}
	return c.do(ctx, method, path, in, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(common.AccessTokenHeaderName, c.AccessToken())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return common.ErrUnauthorized
	}

	b, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/refresh", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return err
	}
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decoding refresh response: %w", err)
	}

	c.mu.Lock()
	c.accessToken = tokens.AccessToken
	c.refreshToken = tokens.RefreshToken
	c.mu.Unlock()
	return nil
}

// mapStatus translates HTTP failures into the engine's error taxonomy.
func mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return common.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %s", common.ErrTransportUnavailable, resp.Status)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed: %s (%s)", resp.Status, string(b))
	}
}
