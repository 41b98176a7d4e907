package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeEndpoint turns "http://host:port", "grpc://host:port" or a bare
// "host:port" into a gRPC dial target.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	switch u.Scheme {
	case "http", "https", "grpc":
		if u.Host == "" {
			return "", fmt.Errorf("endpoint %q has no host", endpoint)
		}
		return u.Host, nil
	case "passthrough", "dns", "unix":
		return endpoint, nil
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}
