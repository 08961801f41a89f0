// Package protocol defines the transport-agnostic envelope shared by the trigger pipeline
// and the provider strategies.
package protocol

import (
	"net/http"
	"net/url"
	"time"
)

// InboundRequest is one received webhook call. RawBody is kept verbatim for signature checks.
type InboundRequest struct {
	RequestID  string
	Method     string
	Path       string
	Headers    http.Header
	Query      url.Values
	RawBody    []byte
	Body       any
	RemoteAddr string
	ReceivedAt time.Time
}

// Header returns the first value of the named header, matched case-insensitively.
func (r *InboundRequest) Header(name string) string {
	if r.Headers == nil {
		return ""
	}

	if value := r.Headers.Get(name); value != "" {
		return value
	}

	for key, values := range r.Headers {
		if len(values) > 0 && http.CanonicalHeaderKey(key) == http.CanonicalHeaderKey(name) {
			return values[0]
		}
	}

	return ""
}

// BodyMap returns the parsed body when it is a JSON object.
func (r *InboundRequest) BodyMap() map[string]any {
	body, _ := r.Body.(map[string]any)

	return body
}

// FlatHeaders returns the headers with one value per canonical key.
func (r *InboundRequest) FlatHeaders() map[string]string {
	flat := make(map[string]string, len(r.Headers))
	for key, values := range r.Headers {
		if len(values) > 0 {
			flat[http.CanonicalHeaderKey(key)] = values[0]
		}
	}

	return flat
}

// Response is a stage outcome that terminates the request.
type Response struct {
	Status int
	// Body is encoded as JSON unless Text is set.
	Body    any
	Text    string
	Headers map[string]string
}

func JSON(status int, body any) *Response {
	return &Response{Status: status, Body: body}
}

func Text(status int, text string) *Response {
	return &Response{Status: status, Text: text}
}

// IsText reports whether the response is plain text.
func (r *Response) IsText() bool {
	return r.Body == nil
}

func (r *Response) WithHeader(key, value string) *Response {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}

	r.Headers[key] = value

	return r
}
