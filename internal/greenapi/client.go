// Package greenapi sends WhatsApp messages through a GreenAPI instance.
package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.green-api.com"

// StatusError is returned when GreenAPI answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("greenapi: unexpected status %d body=%q", e.Code, e.Body)
}

// Client calls the sendMessage and getStateInstance endpoints.
type Client struct {
	baseURL    string
	instanceID string
	token      string
	http       *http.Client
}

// New creates a client. An empty baseURL selects DefaultBaseURL and a zero
// timeout selects 20s.
func New(baseURL, instanceID, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		http:       &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

type sendResponse struct {
	IDMessage string `json:"idMessage"`
}

type stateResponse struct {
	StateInstance string `json:"stateInstance"`
}

// ChatID converts normalized digits to a personal chat id. Values that
// already carry a suffix are returned unchanged.
func ChatID(recipient string) string {
	if strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + "@c.us"
}

// Send delivers body to recipient and returns GreenAPI's idMessage.
func (c *Client) Send(ctx context.Context, recipient, body string) (string, error) {
	reqBody, err := json.Marshal(sendRequest{ChatID: ChatID(recipient), Message: body})
	if err != nil {
		return "", err
	}

	var sr sendResponse
	if err := c.do(ctx, http.MethodPost, "sendMessage", bytes.NewReader(reqBody), &sr); err != nil {
		return "", err
	}
	if sr.IDMessage == "" {
		return "", errors.New("greenapi: missing idMessage in response")
	}
	return sr.IDMessage, nil
}

// State returns the instance state, e.g. "authorized" or "notAuthorized".
func (c *Client) State(ctx context.Context) (string, error) {
	var sr stateResponse
	if err := c.do(ctx, http.MethodGet, "getStateInstance", nil, &sr); err != nil {
		return "", err
	}
	return sr.StateInstance, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	url := fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, endpoint, c.token)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("greenapi %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("greenapi %s: decode json: %w body=%q", endpoint, err, string(data))
	}
	return nil
}
