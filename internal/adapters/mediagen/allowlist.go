package mediagen

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HostAllowlist validates that artifact URLs returned by providers point at
// known storage hosts. Matching is by eTLD+1, so "cdn.provider.example"
// passes an allowlist entry of "provider.example". Relative paths carry no
// host and always pass; they name objects in our own bucket layout.
type HostAllowlist struct {
	etlds map[string]struct{}
}

// NewHostAllowlist builds an allowlist from host patterns. An empty pattern
// list disables validation entirely.
func NewHostAllowlist(patterns []string) *HostAllowlist {
	etlds := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if etld := extractETLDPlusOne(p); etld != "" {
			etlds[etld] = struct{}{}
		}
	}
	return &HostAllowlist{etlds: etlds}
}

// Check returns an error when the artifact URL's host falls outside the
// allowlist.
func (a *HostAllowlist) Check(artifactURL string) error {
	if a == nil || len(a.etlds) == 0 {
		return nil
	}

	u, err := url.Parse(artifactURL)
	if err != nil {
		return fmt.Errorf("invalid artifact URL %q: %w", artifactURL, err)
	}
	if u.Host == "" {
		return nil
	}

	etld := extractETLDPlusOne(u.Hostname())
	if etld == "" {
		return fmt.Errorf("artifact host %q has no registrable domain", u.Hostname())
	}
	if _, ok := a.etlds[etld]; !ok {
		return fmt.Errorf("artifact host %q is not on the provider allowlist", u.Hostname())
	}
	return nil
}

// CheckAll validates every URL in the slice, failing on the first offender.
func (a *HostAllowlist) CheckAll(artifactURLs []string) error {
	for _, u := range artifactURLs {
		if err := a.Check(u); err != nil {
			return err
		}
	}
	return nil
}

// extractETLDPlusOne extracts the eTLD+1 from a host using the public
// suffix list.
func extractETLDPlusOne(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return etld1
}
