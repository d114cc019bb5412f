package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"strings"
)

// signedPrefix marks a signed cookie value.
const signedPrefix = "s:"

// Sign appends an HMAC-SHA256 signature of val to val, in the format used by
// the Node cookie-signature package: "<val>.<base64 without padding>".
func Sign(val, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(val))
	return val + "." + base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

// Unsign verifies a value produced by Sign and returns the original value.
func Unsign(signed, secret string) (string, bool) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 {
		return "", false
	}
	val := signed[:i]
	expected := Sign(val, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signed)) != 1 {
		return "", false
	}
	return val, true
}

// EncodeCookie returns the URL-encoded cookie value for sid.
func EncodeCookie(sid, secret string) string {
	return url.QueryEscape(signedPrefix + Sign(sid, secret))
}

// DecodeCookie extracts the session id from a raw cookie value. Only
// signed values with a valid signature are accepted.
func DecodeCookie(raw, secret string) (string, bool) {
	v, err := url.PathUnescape(raw)
	if err != nil {
		v = raw
	}
	if !strings.HasPrefix(v, signedPrefix) {
		return "", false
	}
	return Unsign(v[len(signedPrefix):], secret)
}
