// Package guard provides the security primitives shared across passerelle:
// backend URL vetting, credential sanity checks, identifier validation, and
// bounded I/O helpers.
package guard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MinTokenLen is the minimum acceptable length for backend access tokens.
// Anything shorter is a placeholder or a typo, not a credential.
const MinTokenLen = 20

// MaxResponseBody is the default cap for HTTP response body reads (1 MiB).
// Clients dealing in page content override it per call.
const MaxResponseBody int64 = 1 << 20

// ErrTokenTooShort is returned when a token does not meet MinTokenLen.
var ErrTokenTooShort = fmt.Errorf("guard: token must be at least %d characters", MinTokenLen)

// ErrPrivateAddress is returned when a URL targets a private/loopback
// address and the caller did not opt in to private networks.
var ErrPrivateAddress = errors.New("guard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("guard: only http and https schemes are allowed")

// ErrBodyTooLarge is returned by LimitedReadAll when the source exceeds the cap.
var ErrBodyTooLarge = errors.New("guard: response body exceeds limit")

// ValidateToken checks that token is plausibly a real credential.
func ValidateToken(token string) error {
	if len(token) < MinTokenLen {
		return ErrTokenTooShort
	}
	return nil
}

// ValidateBaseURL checks that rawURL uses http/https and has a hostname.
// Unless allowPrivate is set it also rejects private and loopback targets;
// enterprise backends frequently live on intranets, so deployments that
// talk to them set allow_private_networks in their config.
func ValidateBaseURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("guard: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("guard: URL has no host")
	}
	if allowPrivate {
		return nil
	}

	// Check literal IP first.
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrPrivateAddress
		}
		return nil
	}

	// Resolve hostname and check all addresses. DNS failure is allowed
	// through: the caller gets a network error at connection time anyway.
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// ValidateIdentifier rejects identifiers unsuitable for URL path segments
// or audit keys: project names, wiki identifiers, queue names, file keys.
// Allows alphanumeric, underscore, hyphen, and dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("guard: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("guard: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("guard: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r. Returns ErrBodyTooLarge
// (wrapped with the limit) if the source has more.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '.':
		return true
	}
	return false
}

// isPrivateIP reports whether ip belongs to a range a configured backend
// URL must never reach: loopback, RFC 1918 / ULA private space,
// link-local, or the unspecified address.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
