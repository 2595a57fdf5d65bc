package audits

import (
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ParseTargetURL accepts only absolute URLs (scheme + host).
func ParseTargetURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &InputError{Message: InvalidURLMessage}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &InputError{Message: InvalidURLMessage}
	}
	return u, nil
}

// CheckNavigable rejects schemes a browser audit cannot use and, unless allowPrivate is set,
// loopback and private-network hosts.
func CheckNavigable(u *url.URL, allowPrivate bool) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return &InputError{Message: InvalidURLMessage}
	}
	if allowPrivate {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return &InputError{Message: InvalidURLMessage}
	}
	if addr, err := netip.ParseAddr(host); err == nil && !PublicAddr(addr) {
		return &InputError{Message: InvalidURLMessage}
	}
	return nil
}

var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// PublicAddr reports whether a is routable on the public internet.
func PublicAddr(a netip.Addr) bool {
	a = a.Unmap()
	switch {
	case !a.IsValid(), a.IsLoopback(), a.IsPrivate(), a.IsUnspecified(),
		a.IsLinkLocalUnicast(), a.IsLinkLocalMulticast(), a.IsMulticast(),
		sharedAddressSpace.Contains(a):
		return false
	}
	return true
}

// CheckResolved rejects a hostname when any of its addresses is not public.
// This does not cover DNS answers that change between this check and the browser's own lookup.
func CheckResolved(addrs []netip.Addr) error {
	for _, a := range addrs {
		if !PublicAddr(a) {
			return &InputError{Message: InvalidURLMessage}
		}
	}
	return nil
}

// RegistrableDomain returns eTLD+1 for the host, or the bare host when it has none (IPs, localhost).
func RegistrableDomain(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}
