package mcp

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioTransport_ExitedProcessLosesSession(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	tr, err := StartStdio(context.Background(), "true", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	_, err = tr.Call(context.Background(), "initialize", map[string]any{})
	assert.ErrorIs(t, err, ErrSessionLost)
}
