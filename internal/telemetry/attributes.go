// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across the daemon.
const (
	VideoIDKey      = "video.id"
	VideoTitleKey   = "video.title"
	VideoChannelKey = "video.channel"

	IngestReasonKey = "ingest.exit_reason"
	IngestChunksKey = "ingest.chunks"

	JobStateKey    = "job.state"
	JobStageKey    = "job.stage"
	JobAttemptsKey = "job.attempts"

	ProviderNameKey  = "provider.name"
	ProviderModelKey = "provider.model"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// VideoAttributes creates span attributes for one video.
func VideoAttributes(id, title, channel string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(VideoIDKey, id)}
	if title != "" {
		attrs = append(attrs, attribute.String(VideoTitleKey, title))
	}
	if channel != "" {
		attrs = append(attrs, attribute.String(VideoChannelKey, channel))
	}
	return attrs
}

// JobAttributes creates span attributes for one job stage.
func JobAttributes(state, stage string, attempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobStateKey, state),
		attribute.String(JobStageKey, stage),
		attribute.Int(JobAttemptsKey, attempts),
	}
}

// ProviderAttributes creates span attributes for an external model call.
func ProviderAttributes(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProviderNameKey, provider),
		attribute.String(ProviderModelKey, model),
	}
}

// ErrorAttributes creates error span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
