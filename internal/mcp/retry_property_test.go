package mcp

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_RetryBoundedAndDoubling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 60
	properties := gopter.NewProperties(parameters)

	properties.Property("always-failing call makes maxRetries+1 attempts with doubling delays", prop.ForAll(
		func(maxRetries int, baseMs int) bool {
			tr := &scriptedTransport{always: &RemoteError{Status: http.StatusServiceUnavailable}}
			rec := &sleepRecorder{}
			policy := RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Duration(baseMs) * time.Millisecond}
			c := newScriptedClient(tr, policy, rec)

			_, err := c.CallTool(context.Background(), "t", nil)
			var te *ToolExecutionError
			if !errors.As(err, &te) || te.Attempts != maxRetries+1 || tr.calls != maxRetries+1 {
				return false
			}
			if len(rec.delays) != maxRetries {
				return false
			}
			for i := 1; i < len(rec.delays); i++ {
				if rec.delays[i] < rec.delays[i-1] || rec.delays[i] != 2*rec.delays[i-1] {
					return false
				}
			}
			return len(rec.delays) == 0 || rec.delays[0] == policy.BaseDelay
		},
		gen.IntRange(0, 6),
		gen.IntRange(1, 2000),
	))

	properties.Property("non-retryable failure consumes exactly one attempt", prop.ForAll(
		func(maxRetries int, status int) bool {
			tr := &scriptedTransport{always: &RemoteError{Status: status}}
			rec := &sleepRecorder{}
			c := newScriptedClient(tr, RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond}, rec)

			_, err := c.CallTool(context.Background(), "t", nil)
			var te *ToolExecutionError
			return errors.As(err, &te) && te.Attempts == 1 && tr.calls == 1 && len(rec.delays) == 0
		},
		gen.IntRange(0, 6),
		gen.OneConstOf(http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound),
	))

	properties.TestingRun(t)
}
