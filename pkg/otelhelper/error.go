package otelhelper

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StatusCodeKey holds the HTTP status returned to, or received from, a webhook peer.
const StatusCodeKey = "http.response.status_code"

// SetError marks span as failed. A nil err leaves the span untouched.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetStatusCode records an HTTP status on span; 5xx also marks the span as failed.
func SetStatusCode(span trace.Span, status int) {
	if status == 0 {
		return
	}

	span.SetAttributes(attribute.Int(StatusCodeKey, status))

	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
