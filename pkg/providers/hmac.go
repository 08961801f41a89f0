package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

func hmacSHA256(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, part := range parts {
		_, _ = mac.Write(part)
	}

	return mac.Sum(nil)
}

// verifyHexSignature checks a header of the form <prefix><hex digest>.
func verifyHexSignature(header, prefix string, expected []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return unauthorized("missing signature header")
	}

	signature := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return unauthorized("signature is not hex encoded")
	}

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return unauthorized("signature mismatch")
	}

	return nil
}

// verifyBase64Signature checks a header of the form <prefix><base64 digest>.
func verifyBase64Signature(header, prefix string, expected []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return unauthorized("missing signature header")
	}

	signature := strings.TrimSpace(strings.TrimPrefix(header, prefix))

	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return unauthorized("signature is not base64 encoded")
	}

	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return unauthorized("signature mismatch")
	}

	return nil
}

func tokensEqual(actual, expected string) bool {
	actual = strings.TrimSpace(actual)
	expected = strings.TrimSpace(expected)

	if actual == "" || expected == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
