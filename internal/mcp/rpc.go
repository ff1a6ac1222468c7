package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	protocolVersion = "2024-11-05"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602

	// Tool results may carry inline base64 media, so lines can be large.
	maxLineBytes = 32 << 20
)

var errNoResponse = errors.New("no JSON-RPC response in body")

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func newRequest(id int64, method string, params any) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
}

func newNotification(method string, params any) rpcRequest {
	return rpcRequest{JSONRPC: "2.0", Method: method, Params: params}
}

// matches reports whether r answers request id. Server-initiated
// notifications and responses to other requests do not match.
func (r *rpcResponse) matches(id int64) bool {
	if r.Method != "" || len(r.ID) == 0 {
		return false
	}
	raw := strings.Trim(string(r.ID), `"`)
	got, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return got == id && (r.Result != nil || r.Error != nil)
}

// unwrap turns a decoded response into its result or a RemoteError.
func (r *rpcResponse) unwrap() (json.RawMessage, error) {
	if r.Error != nil {
		msg := r.Error.Message
		if len(r.Error.Data) > 0 {
			msg += ": " + string(r.Error.Data)
		}
		return nil, &RemoteError{Code: r.Error.Code, Message: msg}
	}
	return r.Result, nil
}

// parseLine tries to decode one candidate JSON payload. Unparsable input is
// reported as ok=false so callers can skip it.
func parseLine(line []byte) (rpcResponse, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return rpcResponse{}, false
	}
	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return rpcResponse{}, false
	}
	return resp, true
}

// readResponse reads the answer to request id from r. Event-stream framing
// ("data:" lines separated by blank lines) and a single JSON document are
// both accepted; a JSON body that fails to parse whole is rescanned line by
// line so interleaved noise is skipped instead of failing the call.
func readResponse(contentType string, r io.Reader, id int64) (json.RawMessage, error) {
	if strings.HasPrefix(strings.ToLower(contentType), "text/event-stream") {
		return readEventStream(r, id)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp, ok := parseLine(body); ok && resp.matches(id) {
		return resp.unwrap()
	}
	return readEventStream(bytes.NewReader(body), id)
}

// readEventStream scans r for a response to id. It stops as soon as the
// response arrives, so a server that keeps the stream open is not waited on.
func readEventStream(r io.Reader, id int64) (json.RawMessage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var data bytes.Buffer
	flush := func() (json.RawMessage, bool, error) {
		if data.Len() == 0 {
			return nil, false, nil
		}
		resp, ok := parseLine(data.Bytes())
		data.Reset()
		if !ok || !resp.matches(id) {
			return nil, false, nil
		}
		result, err := resp.unwrap()
		return result, true, err
	}

	for sc.Scan() {
		line := sc.Bytes()
		switch {
		case len(bytes.TrimSpace(line)) == 0:
			if res, done, err := flush(); done {
				return res, err
			}
		case line[0] == ':':
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("data:")):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimSpace(line[len("data:"):]))
		case bytes.HasPrefix(line, []byte("event:")), bytes.HasPrefix(line, []byte("id:")), bytes.HasPrefix(line, []byte("retry:")):
		default:
			// Bare JSON line (newline-delimited framing) or noise.
			if res, done, err := flush(); done {
				return res, err
			}
			if resp, ok := parseLine(line); ok && resp.matches(id) {
				return resp.unwrap()
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	if res, done, err := flush(); done {
		return res, err
	}
	return nil, errNoResponse
}
