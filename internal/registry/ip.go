package registry

import (
	"fmt"
	"net/netip"
	"strings"
)

// validateIPRestriction checks a comma-separated list of addresses and CIDR
// prefixes.
func validateIPRestriction(list string) error {
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			if _, err := netip.ParsePrefix(item); err != nil {
				return fmt.Errorf("%w: bad CIDR %q", ErrInvalidInput, item)
			}
			continue
		}
		if _, err := netip.ParseAddr(item); err != nil {
			return fmt.Errorf("%w: bad address %q", ErrInvalidInput, item)
		}
	}
	return nil
}

// AllowsIP reports whether the restriction permits a client address. An
// empty restriction permits everything. An empty client address (no
// attribution at the transport) also passes; a malformed one does not.
func (r Restriction) AllowsIP(clientIP string) bool {
	if strings.TrimSpace(r.IPRestriction) == "" {
		return true
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return true
	}
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	for _, item := range strings.Split(r.IPRestriction, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		allowed, err := netip.ParseAddr(item)
		if err == nil && allowed == addr {
			return true
		}
	}
	return false
}
