package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultSignatureHeader is where the platform places the callback signature.
const DefaultSignatureHeader = "X-Signature"

// HMACVerifier checks the platform callback signature: base64 of the
// HMAC-SHA256 digest of the raw request body keyed with the channel secret.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("webhooks: channel secret is required")
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

func (v *HMACVerifier) Verify(body []byte, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return fmt.Errorf("webhooks: verifier is not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature is required")
	}
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("webhooks: signature is not valid base64: %w", err)
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return fmt.Errorf("webhooks: signature mismatch")
	}
	return nil
}

// Sign computes the signature the platform would send for body. Used by tests
// and by local tooling that replays captured callbacks.
func (v *HMACVerifier) Sign(body []byte) string {
	if v == nil || len(v.secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

var _ Verifier = (*HMACVerifier)(nil)
