package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"markestedt/keyguard/guard"
	"markestedt/keyguard/storage"
)

// JournalPage is one page of journal entries
type JournalPage struct {
	Entries []storage.Entry `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// APIClient talks to a running control server
type APIClient struct {
	baseURL string
	http    *http.Client
}

// NewAPIClient creates a client for the server at baseURL
// (e.g., http://127.0.0.1:47380)
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// LocalURL returns the base URL of a server on the loopback port
func LocalURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func (c *APIClient) Status(ctx context.Context) (guard.Status, error) {
	var st guard.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

func (c *APIClient) DisableAll(ctx context.Context) (guard.Status, error) {
	return c.action(ctx, http.MethodPost, "/api/disable-all", nil)
}

func (c *APIClient) EnableAll(ctx context.Context) (guard.Status, error) {
	return c.action(ctx, http.MethodPost, "/api/enable-all", nil)
}

func (c *APIClient) StartHook(ctx context.Context) (guard.Status, error) {
	return c.action(ctx, http.MethodPost, "/api/hook/start", nil)
}

func (c *APIClient) StopHook(ctx context.Context) (guard.Status, error) {
	return c.action(ctx, http.MethodPost, "/api/hook/stop", nil)
}

// SetRule blocks or allows one rule by name
func (c *APIClient) SetRule(ctx context.Context, name string, blocked bool) (guard.Status, error) {
	body := map[string]bool{"blocked": blocked}
	return c.action(ctx, http.MethodPut, "/api/rules/"+url.PathEscape(name), body)
}

// Journal fetches the newest entries
func (c *APIClient) Journal(ctx context.Context, limit, offset int) (JournalPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var page JournalPage
	err := c.do(ctx, http.MethodGet, "/api/journal?"+q.Encode(), nil, &page)
	return page, err
}

// Watch streams status pushes to fn until ctx is done or the server goes
// away. The first push is the status at connect time.
func (c *APIClient) Watch(ctx context.Context, fn func(guard.Status)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg struct {
			Type MessageType     `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("watch connection lost: %w", err)
		}
		if msg.Type != MessageTypeStatus {
			continue
		}

		var st guard.Status
		if err := json.Unmarshal(msg.Data, &st); err != nil {
			return fmt.Errorf("failed to decode status: %w", err)
		}
		fn(st)
	}
}

// action calls a control endpoint. The returned status is valid even when
// the control call failed.
func (c *APIClient) action(ctx context.Context, method, path string, body interface{}) (guard.Status, error) {
	var resp ActionResponse
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return resp.Status, err
	}
	if !resp.OK {
		return resp.Status, errors.New(resp.Error)
	}
	return resp.Status, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach keyguard at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	isJSON := strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json")
	if isJSON && out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode >= 400 {
		if isJSON {
			if ar, ok := out.(*ActionResponse); ok && ar.Error != "" {
				return errors.New(ar.Error)
			}
		}
		return fmt.Errorf("request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return nil
}
