package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitAndSpanExport(t *testing.T) {
	location := filepath.Join(t.TempDir(), "spans.json")
	assert.NoError(t, Init("kernos-test", "0.0.1", location))

	ctx, span := StartSpan(context.Background(), "test.operation", "INTERNAL")
	assert.NotNil(t, ctx)
	span.WithAttributes(map[string]string{"test.key": "test-value"})
	EndSpan(span, nil)

	_, failed := StartSpan(context.Background(), "test.failure", "CLIENT")
	EndSpan(failed, errors.New("simulated failure"))

	// The simple span processor exports synchronously on End.
	data, err := os.ReadFile(location)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "test.operation")
	assert.Contains(t, string(data), "test-value")
	assert.Contains(t, string(data), "test.failure")
	assert.Contains(t, string(data), "simulated failure")
}

func TestNilSpanIsSafe(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() {
		span.WithAttributes(map[string]string{"k": "v"})
		span.SetStatus(nil)
		EndSpan(span, nil)
	})
}

func TestInitWithNilExporter(t *testing.T) {
	assert.NoError(t, InitWithExporter("kernos-test", "0.0.1", nil))
}
