// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Shutdown on the noop provider is a no-op.
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "tubescribe",
		ExporterType: "carrier-pigeon",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter type")
}

func TestTracerReturnsNamedTracer(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	tr := Tracer("ingest")
	require.NotNil(t, tr)

	_, span := tr.Start(context.Background(), "chunk-pump")
	span.End()
}

func TestVideoAttributes(t *testing.T) {
	attrs := VideoAttributes("dQw4w9WgXcQ", "A Title", "")
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String(VideoIDKey, "dQw4w9WgXcQ"), attrs[0])
	assert.Equal(t, attribute.String(VideoTitleKey, "A Title"), attrs[1])
}

func TestJobAttributes(t *testing.T) {
	attrs := JobAttributes("transcribing", "transcribe", 2)
	require.Len(t, attrs, 3)
	assert.Equal(t, attribute.Int(JobAttemptsKey, 2), attrs[2])
}
