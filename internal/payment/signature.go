package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// Verifier authenticates provider callbacks with HMAC-SHA256.
type Verifier struct {
	secret []byte
	newMAC func(key []byte) hash.Hash
}

// NewVerifier returns a Verifier keyed with secret.
func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret), newMAC: hmacSHA256}
}

func hmacSHA256(key []byte) hash.Hash {
	return hmac.New(sha256.New, key)
}

// Configured reports whether a secret is present.
func (v Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Sign returns the lowercase hex HMAC of "providerOrderID|providerPaymentID".
func (v Verifier) Sign(providerOrderID, providerPaymentID string) string {
	return v.sum([]byte(providerOrderID + "|" + providerPaymentID))
}

// Verify checks the checkout callback signature. Missing fields fail with
// ErrMissingVerificationData before any MAC is computed; a mismatch fails with
// ErrInvalidSignature.
func (v Verifier) Verify(providerOrderID, providerPaymentID, signature string) error {
	if providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return ErrMissingVerificationData
	}
	if !v.Configured() {
		return ErrConfiguration
	}
	if !equalHex(v.Sign(providerOrderID, providerPaymentID), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyBody checks a webhook signature computed over the raw request body.
func (v Verifier) VerifyBody(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if len(body) == 0 || signature == "" {
		return ErrMissingVerificationData
	}
	if !v.Configured() {
		return ErrConfiguration
	}
	if !equalHex(v.sum(body), signature) {
		return ErrInvalidSignature
	}
	return nil
}

func (v Verifier) sum(payload []byte) string {
	newMAC := v.newMAC
	if newMAC == nil {
		newMAC = hmacSHA256
	}
	mac := newMAC(v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, provided string) bool {
	return hmac.Equal([]byte(expected), []byte(provided))
}

// redactSignature keeps a short prefix of a signature for logs.
func redactSignature(sig string) string {
	if len(sig) <= 6 {
		return "***"
	}
	return sig[:6] + "***"
}
