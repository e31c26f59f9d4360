// Package auth verifies API credentials presented to the service.
//
// A credential is verified by computing its HMAC-SHA256 digest, keyed
// with the service secret, and comparing that against an expected
// digest; the raw secret is never compared. The comparison
// uses crypto/subtle so string length and byte position never
// influence the running time of the check.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/nhalm/canonlog"
)

// MinCredentialLength is the minimum acceptable length, in bytes, of a
// presented credential. It is a floor, not
// the verification itself: a credential of sufficient length can still
// fail the digest comparison, and a credential below the floor is
// still passed to the comparison at uniform cost, so its rejection
// takes the same code path length-wise as everything else.
const MinCredentialLength = 32

// ErrMissingCredential indicates no credential was presented.
var ErrMissingCredential = errors.New("auth: missing credential")

// ErrInvalidCredential indicates the credential failed verification.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Verifier checks presented credentials against a keyed digest.
//
// Verifier holds no per-caller state; the same instance is safe to
// share across goroutines. It authenticates one shared credential
// scheme, not per-subject secrets; per-subject keys would need a
// lookup from credential to secret before Verify could run.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier keyed on secret. secret is the
// service-wide signing key; it is never logged or returned.
func NewVerifier(secret []byte) *Verifier {
	// Copy defensively: callers must not be able to mutate the key
	// out from under an in-flight Verifier by reusing their slice.
	cp := make([]byte, len(secret))
	copy(cp, secret)
	return &Verifier{secret: cp}
}

// digest computes the keyed HMAC-SHA256 digest of credential, hex
// encoded. It is computed unconditionally by Verify, even when the
// credential is empty or too short, so that no return path completes
// faster than any other based on the credential's shape.
func (v *Verifier) digest(credential string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(credential))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether credential matches expectedDigest, a hex
// HMAC-SHA256 digest previously produced by Digest with the same
// secret. It logs the outcome, never the credential or digest, keyed
// by the request context's canonical log fields.
//
// The digest is always computed, and length/format checks never
// short-circuit before it: a mismatch that fails the length floor and
// a mismatch that fails only the final byte of the digest compare
// take the same shape of code path, so a length-only rejection is not
// distinguishable by timing from a full digest mismatch.
func (v *Verifier) Verify(ctx context.Context, credential, expectedDigest string) error {
	tooShort := len(credential) < MinCredentialLength
	got := v.digest(credential)

	match := subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(expectedDigest))) == 1

	valid := match && !tooShort
	canonlog.InfoAddMany(ctx, map[string]any{
		"auth_credential_valid": valid,
		"auth_credential_len":   len(credential),
	})

	if credential == "" {
		return ErrMissingCredential
	}
	if !valid {
		return ErrInvalidCredential
	}
	return nil
}

// Digest computes the hex HMAC-SHA256 digest of credential under
// secret. Operators use this to derive the expectedDigest value stored
// alongside an issued credential; this package never generates
// credentials itself.
func Digest(secret []byte, credential string) string {
	v := &Verifier{secret: secret}
	return v.digest(credential)
}

// HeaderCredential extracts a bearer credential from an Authorization
// header value of the form "Bearer <credential>". It returns ok=false
// if the header is empty or does not use the Bearer scheme, decoupled
// from any particular HTTP transport so callers outside net/http
// (queue consumers, RPC handlers) can reuse it.
func HeaderCredential(authorizationHeader string) (credential string, ok bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return "", false
	}
	credential = strings.TrimPrefix(authorizationHeader, prefix)
	if credential == "" {
		return "", false
	}
	return credential, true
}
