// Package client calls the daemon's operator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/matheus3301/wppq/internal/api"
	"github.com/matheus3301/wppq/internal/dispatch"
	"github.com/matheus3301/wppq/internal/store"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon: %s (HTTP %d)", e.Message, e.Status)
}

// Client talks HTTP to one daemon.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the daemon listening on a unix socket.
func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{base: "http://wppqd", http: &http.Client{Transport: transport}}
}

// NewTCP returns a client for a daemon serving on base, e.g. "http://127.0.0.1:7474".
func NewTCP(base string) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: &http.Client{}}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er struct {
			Error   string          `json:"error"`
			Details json.RawMessage `json:"details"`
		}
		if json.Unmarshal(data, &er) == nil && er.Error != "" {
			apiErr.Message, apiErr.Details = er.Error, er.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = data
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (c *Client) Status(ctx context.Context) (*api.DispatchStatus, error) {
	var out api.DispatchStatus
	return &out, c.do(ctx, http.MethodGet, "/v1/dispatch", nil, &out)
}

func (c *Client) Enqueue(ctx context.Context, items []api.EnqueueItem) (*api.EnqueueResponse, error) {
	var out api.EnqueueResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/dispatch/enqueue", api.EnqueueRequest{Items: items}, &out)
}

func (c *Client) EnqueueRecords(ctx context.Context, req api.EnqueueRecordsRequest) (*api.EnqueueResponse, error) {
	var out api.EnqueueResponse
	return &out, c.do(ctx, http.MethodPost, "/v1/dispatch/enqueue/records", req, &out)
}

func (c *Client) Start(ctx context.Context, override bool) (*api.DispatchStatus, error) {
	var out api.DispatchStatus
	return &out, c.do(ctx, http.MethodPost, "/v1/dispatch/start", api.StartRequest{Override: override}, &out)
}

func (c *Client) Stop(ctx context.Context) (*api.DispatchStatus, error) {
	var out api.DispatchStatus
	return &out, c.do(ctx, http.MethodPost, "/v1/dispatch/stop", nil, &out)
}

// List names accepted by the positional calls.
const (
	ListQueue  = "queue"
	ListFailed = "failed"
)

// Positional calls take the id of the message meant at index. The daemon
// follows the id when the list has shifted and answers 409 once the
// message is gone. An empty id addresses the index alone.

func (c *Client) Edit(ctx context.Context, list string, index int, id, body string) error {
	return c.do(ctx, http.MethodPut, indexPath(list, index, "", id), api.EditRequest{Body: body}, nil)
}

func (c *Client) Remove(ctx context.Context, list string, index int, id string) (*dispatch.Message, error) {
	var out dispatch.Message
	return &out, c.do(ctx, http.MethodDelete, indexPath(list, index, "", id), nil, &out)
}

func (c *Client) Retry(ctx context.Context, index int, id string) (*dispatch.Message, error) {
	var out dispatch.Message
	return &out, c.do(ctx, http.MethodPost, indexPath(ListFailed, index, "/retry", id), nil, &out)
}

func indexPath(list string, index int, suffix, id string) string {
	p := "/v1/dispatch/" + list + "/" + strconv.Itoa(index) + suffix
	if id != "" {
		p += "?id=" + url.QueryEscape(id)
	}
	return p
}

func (c *Client) Window(ctx context.Context, override bool) (*api.WindowResponse, error) {
	var out api.WindowResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/window?override="+strconv.FormatBool(override), nil, &out)
}

func (c *Client) History(ctx context.Context, limit, offset int) (*api.HistoryResponse, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out api.HistoryResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/history?"+q.Encode(), nil, &out)
}

func (c *Client) Gateway(ctx context.Context) (*api.GatewayResponse, error) {
	var out api.GatewayResponse
	return &out, c.do(ctx, http.MethodGet, "/v1/gateway", nil, &out)
}

// GatewayQR returns the pending pairing code as PNG bytes.
func (c *Client) GatewayQR(ctx context.Context) ([]byte, error) {
	var out []byte
	if err := c.do(ctx, http.MethodGet, "/v1/gateway/qr", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRecords(ctx context.Context, kind string, limit, offset int) ([]store.Record, error) {
	var out struct {
		Records []store.Record `json:"records"`
	}
	path := fmt.Sprintf("/v1/records/%s?limit=%d&offset=%d", url.PathEscape(kind), limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) CreateRecord(ctx context.Context, kind string, fields map[string]any) (*store.Record, error) {
	var out store.Record
	return &out, c.do(ctx, http.MethodPost, "/v1/records/"+url.PathEscape(kind), api.RecordRequest{Fields: fields}, &out)
}

func (c *Client) GetRecord(ctx context.Context, kind, id string) (*store.Record, error) {
	var out store.Record
	return &out, c.do(ctx, http.MethodGet, "/v1/records/"+url.PathEscape(kind)+"/"+url.PathEscape(id), nil, &out)
}

func (c *Client) UpdateRecord(ctx context.Context, kind, id string, fields map[string]any) (*store.Record, error) {
	var out store.Record
	return &out, c.do(ctx, http.MethodPatch, "/v1/records/"+url.PathEscape(kind)+"/"+url.PathEscape(id), api.RecordRequest{Fields: fields}, &out)
}
