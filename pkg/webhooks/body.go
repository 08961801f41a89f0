package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
)

// RawKey holds the verbatim body of a request that is not JSON.
const RawKey = "_raw"

var ErrBodyTooLarge = errors.New("request body too large")

// ReadBody reads at most limit bytes from r. Empty bodies become "{}".
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if int64(len(raw)) > limit {
		return nil, ErrBodyTooLarge
	}

	if len(raw) == 0 {
		return []byte("{}"), nil
	}

	return raw, nil
}

// ParseBody decodes raw into a generic value. It never fails: JSON is decoded as is,
// a url-encoded form carrying a JSON "payload" field yields that payload, and anything
// else is wrapped as {"_raw": text}.
func ParseBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var body any
	if err := json.Unmarshal(raw, &body); err == nil {
		return body
	}

	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "application/x-www-form-urlencoded" {
		if payload, ok := formPayload(raw); ok {
			return payload
		}
	}

	return map[string]any{RawKey: string(raw)}
}

// formPayload unwraps the JSON "payload" field of a url-encoded form.
func formPayload(raw []byte) (any, bool) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, false
	}

	payload := values.Get("payload")
	if payload == "" {
		return nil, false
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, false
	}

	return decoded, true
}
