package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
)

// ErrSessionLost means the transport can no longer carry requests, for
// example because the subprocess exited. The client reconnects on the next
// attempt.
var ErrSessionLost = errors.New("mcp: session lost")

// StdioTransport talks to a tool service launched as a subprocess, one
// JSON-RPC message per line. Non-JSON stdout lines (server log output) are
// skipped.
type StdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	mu     sync.Mutex
	nextID atomic.Int64
}

// StartStdio launches command and returns a transport bound to its pipes.
// The process lives until Close or until ctx is cancelled.
func StartStdio(ctx context.Context, command string, args []string, env map[string]string) (*StdioTransport, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", command, err)
	}

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &StdioTransport{cmd: cmd, stdin: stdin, stdout: sc}, nil
}

func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(newRequest(id, method, params)); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !t.stdout.Scan() {
			if err := t.stdout.Err(); err != nil {
				return nil, fmt.Errorf("%w: read stdout: %w", ErrSessionLost, err)
			}
			return nil, fmt.Errorf("%w: %w", ErrSessionLost, io.ErrUnexpectedEOF)
		}
		resp, ok := parseLine(t.stdout.Bytes())
		if !ok || !resp.matches(id) {
			continue
		}
		return resp.unwrap()
	}
}

func (t *StdioTransport) Notify(_ context.Context, method string, params any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(newNotification(method, params))
}

func (t *StdioTransport) Close() error {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	_ = t.cmd.Wait()
	return nil
}

func (t *StdioTransport) write(msg rpcRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Method, err)
	}
	if _, err := fmt.Fprintf(t.stdin, "%s\n", data); err != nil {
		return fmt.Errorf("%w: write stdin: %w", ErrSessionLost, err)
	}
	return nil
}
