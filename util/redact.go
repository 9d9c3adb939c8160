package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
)

// RedactEndpoint keeps the scheme and host of a node url and replaces
// everything that may carry an api key with a short fingerprint, so two
// different keys for the same host still log differently.
func RedactEndpoint(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	fingerprint := hex.EncodeToString(sum[:4])

	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "#" + fingerprint
	}
	if u.User == nil && (u.Path == "" || u.Path == "/") && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "#" + fingerprint
}
