package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const sessionHeader = "Mcp-Session-Id"

// Transport carries JSON-RPC exchanges to the remote tool service.
type Transport interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Close() error
}

// HTTPOptions configures an HTTPTransport.
type HTTPOptions struct {
	// TokenHeader names the header carrying the static credential.
	TokenHeader string
	Token       string
	Headers     map[string]string
	Timeout     time.Duration
}

// HTTPTransport posts one JSON-RPC request per HTTP request. The answer may
// be a JSON document or an event stream.
type HTTPTransport struct {
	url    string
	opts   HTTPOptions
	client *http.Client
	nextID atomic.Int64

	mu        sync.Mutex
	sessionID string
}

func NewHTTPTransport(url string, opts HTTPOptions) *HTTPTransport {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPTransport{
		url:    url,
		opts:   opts,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	resp, err := t.post(ctx, newRequest(id, method, params))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return readResponse(resp.Header.Get("Content-Type"), resp.Body, id)
}

func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	resp, err := t.post(ctx, newNotification(method, params))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return &RemoteError{Status: resp.StatusCode, Message: method}
	}
	return nil
}

func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) post(ctx context.Context, msg rpcRequest) (*http.Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if t.opts.Token != "" {
		req.Header.Set(t.opts.TokenHeader, t.opts.Token)
	}
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}
	t.mu.Lock()
	if t.sessionID != "" {
		req.Header.Set(sessionHeader, t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if sid := resp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	return resp, nil
}
