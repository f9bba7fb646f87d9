package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrSourceRejected is wrapped by every SourcePolicy.Check failure.
var ErrSourceRejected = errors.New("media: source rejected")

// SourcePolicy decides which URLs may be handed to a decoder on behalf of a
// remote client. Only absolute http and https URLs are accepted. When
// AllowedHosts is non-empty the host must also match one of its entries,
// either exactly or as a subdomain of an entry written with a leading dot
// (".example.com").
type SourcePolicy struct {
	AllowedHosts []string
}

// Check returns nil when raw is acceptable.
func (p SourcePolicy) Check(raw string) error {
	if raw == "" || strings.HasPrefix(raw, "-") {
		return fmt.Errorf("%w: not an absolute URL", ErrSourceRejected)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceRejected, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not http or https", ErrSourceRejected, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrSourceRejected)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrSourceRejected)
	}

	if len(p.AllowedHosts) == 0 {
		return nil
	}
	for _, allowed := range p.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		switch {
		case allowed == "":
		case strings.HasPrefix(allowed, "."):
			if host == allowed[1:] || strings.HasSuffix(host, allowed) {
				return nil
			}
		case host == allowed:
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not allowed", ErrSourceRejected, host)
}
