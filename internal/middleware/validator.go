package middleware

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Input validation utilities

var (
	tenantPattern     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	resourceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)
)

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateResourceID checks analyzer / classifier ids.
func ValidateResourceID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !resourceIDPattern.MatchString(id) {
		return fmt.Errorf("invalid id %q (letters, digits, dot, dash, underscore; max 64 chars)", id)
	}
	return nil
}

// ValidateInputURL checks a URL the remote service will fetch itself.
// Loopback and private hosts are refused since the service cannot reach them.
func ValidateInputURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("URL has no host")
	}
	if host == "localhost" {
		return fmt.Errorf("localhost/internal IPs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast()) {
		return fmt.Errorf("localhost/internal IPs are not allowed")
	}
	return nil
}

// ValidatePrefix rejects traversal in a staging prefix. Empty is allowed.
func ValidatePrefix(prefix string) error {
	for _, seg := range strings.Split(prefix, "/") {
		if seg == ".." {
			return fmt.Errorf("path traversal detected")
		}
	}
	if strings.ContainsAny(prefix, "\x00\r\n") {
		return fmt.Errorf("invalid characters in prefix")
	}
	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
