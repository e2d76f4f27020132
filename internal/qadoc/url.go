package qadoc

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so cache keys do not split on cosmetic
// differences. It lowercases the scheme and host, removes default ports and
// fragments, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q missing scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// AuthFingerprint derives a stable digest of the auth context so two
// different credentials for the same URL never share a cache entry. A nil
// config fingerprints as the anonymous context.
func AuthFingerprint(auth *AuthConfig, hasher Hasher) (string, error) {
	if auth == nil {
		return "anonymous", nil
	}
	material := strings.Join([]string{
		string(auth.Type),
		auth.Username,
		auth.Password,
		string(auth.TokenKind),
		auth.TokenName,
		auth.TokenValue,
	}, "\x00")
	sum, err := hasher.Hash([]byte(material))
	if err != nil {
		return "", fmt.Errorf("fingerprint auth config: %w", err)
	}
	return sum, nil
}

// SnapshotCacheKey joins the normalized URL with the auth fingerprint.
func SnapshotCacheKey(rawURL string, auth *AuthConfig, hasher Hasher) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	fp, err := AuthFingerprint(auth, hasher)
	if err != nil {
		return "", err
	}
	return normalized + "|" + fp, nil
}
