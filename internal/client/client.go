// Package client talks to the focusd HTTP API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pomodoro/focusd/internal/model"
)

// Error is an error envelope returned by the server.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Focus struct {
	TaskID int64       `json:"taskId"`
	Task   *model.Task `json:"task,omitempty"`
}

type authResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// New returns a client for baseURL. A nil httpClient uses a client without
// a global timeout so that Watch can stream indefinitely.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

func (c *Client) Token() string {
	return c.token
}

// Login exchanges credentials for a token, which the client keeps for
// subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/login", email, password)
}

func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (string, error) {
	var result authResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return "", err
	}
	c.token = result.Token
	return result.Token, nil
}

func (c *Client) State(ctx context.Context) (model.TimerState, error) {
	return c.state(ctx, http.MethodGet, "/api/timer/state", nil)
}

func (c *Client) Start(ctx context.Context) (model.TimerState, error) {
	return c.state(ctx, http.MethodPost, "/api/timer/start", nil)
}

func (c *Client) Stop(ctx context.Context) (model.TimerState, error) {
	return c.state(ctx, http.MethodPost, "/api/timer/stop", nil)
}

func (c *Client) SwitchPhase(ctx context.Context, phase string) (model.TimerState, error) {
	return c.state(ctx, http.MethodPost, "/api/timer/phase", map[string]string{"phase": phase})
}

func (c *Client) state(ctx context.Context, method, path string, body interface{}) (model.TimerState, error) {
	var resp struct {
		State model.TimerState `json:"state"`
	}
	err := c.do(ctx, method, path, body, &resp)
	return resp.State, err
}

func (c *Client) Settings(ctx context.Context) (model.Settings, error) {
	var resp struct {
		Settings model.Settings `json:"settings"`
	}
	err := c.do(ctx, http.MethodGet, "/api/settings", nil, &resp)
	return resp.Settings, err
}

func (c *Client) UpdateSettings(ctx context.Context, settings model.Settings) (model.Settings, error) {
	var resp struct {
		Settings model.Settings `json:"settings"`
	}
	err := c.do(ctx, http.MethodPut, "/api/settings", settings, &resp)
	return resp.Settings, err
}

func (c *Client) Focus(ctx context.Context) (Focus, error) {
	return c.focus(ctx, http.MethodGet, nil)
}

func (c *Client) SetFocus(ctx context.Context, taskID int64) (Focus, error) {
	return c.focus(ctx, http.MethodPut, map[string]int64{"taskId": taskID})
}

func (c *Client) ClearFocus(ctx context.Context) (Focus, error) {
	return c.focus(ctx, http.MethodDelete, nil)
}

func (c *Client) focus(ctx context.Context, method string, body interface{}) (Focus, error) {
	var resp struct {
		Focus Focus `json:"focus"`
	}
	err := c.do(ctx, method, "/api/focus", body, &resp)
	return resp.Focus, err
}

// Watch follows the state event stream and calls fn for every snapshot
// until ctx is done, the server closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(model.TimerState) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/timer/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var state model.TimerState
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &state); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(state); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error Error `json:"error"`
	}
	apiErr := &envelope.Error
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || apiErr.Code == "" {
		apiErr.Code = "http_" + strconv.Itoa(resp.StatusCode)
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}

// FormatRemaining renders seconds as mm:ss.
func FormatRemaining(seconds int) string {
	d := time.Duration(max(seconds, 0)) * time.Second
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
