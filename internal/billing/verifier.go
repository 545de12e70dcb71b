package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"proofwork/internal/types"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

// Verify reports whether providedSignatureHex is the lowercase hex
// HMAC-SHA256 of rawBody under sharedSecret. It fails closed on an empty
// secret or signature. The hex strings themselves are compared in constant
// time, so any other spelling of the digest is rejected.
func Verify(rawBody []byte, providedSignatureHex string, sharedSecret []byte) bool {
	if len(sharedSecret) == 0 || providedSignatureHex == "" {
		return false
	}
	expected := Sign(rawBody, sharedSecret)
	return hmac.Equal([]byte(expected), []byte(providedSignatureHex))
}

// Sign returns the hex-encoded HMAC-SHA256 of rawBody under sharedSecret.
func Sign(rawBody []byte, sharedSecret []byte) string {
	mac := hmac.New(sha256.New, sharedSecret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookVerifier authenticates inbound billing webhooks.
type WebhookVerifier interface {
	Verify(rawBody []byte, signatureHex string) error
}

// HMACVerifier is the WebhookVerifier for the billing provider's shared-secret
// signature scheme.
type HMACVerifier struct {
	secret types.SecretString
}

// NewHMACVerifier returns a verifier bound to secret. An empty secret is
// accepted here and rejects every request.
func NewHMACVerifier(secret types.SecretString) *HMACVerifier {
	return &HMACVerifier{secret: secret}
}

// errSignatureInvalid is the single error returned for every verification
// failure so that callers cannot distinguish the cause.
var errSignatureInvalid = types.NewAppError(types.ErrCodeAuthSignatureInvalid, "invalid webhook signature", nil)

// Verify returns auth_signature_invalid unless signatureHex authenticates rawBody.
func (v *HMACVerifier) Verify(rawBody []byte, signatureHex string) error {
	if !Verify(rawBody, signatureHex, []byte(v.secret.Unmask())) {
		return errSignatureInvalid
	}
	return nil
}

// ErrSignatureInvalid returns the uniform verification failure.
func ErrSignatureInvalid() *types.AppError {
	return errSignatureInvalid
}
