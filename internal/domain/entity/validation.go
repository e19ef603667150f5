package entity

import (
	"fmt"
	"net"
	"net/url"
)

// maxURLLength defines the maximum allowed length for feed URLs.
const maxURLLength = 2048

// ValidateURL checks that a feed URL is well-formed, uses http or https and
// names a host. It performs no network I/O.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: err.Error()}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if parsedURL.Hostname() == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	return nil
}

// RejectPrivateHost resolves the URL host and fails when any address is
// loopback, link-local or in a private range.
func RejectPrivateHost(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: err.Error()}
	}
	ips, err := net.LookupIP(parsedURL.Hostname())
	if err != nil {
		// unresolvable hosts surface later as transient fetch failures
		return nil
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return &ValidationError{Field: "url", Message: "url cannot point to private network"}
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	// cloud metadata endpoint range
	_, linkLocal, _ := net.ParseCIDR("169.254.0.0/16")
	return linkLocal.Contains(ip)
}
