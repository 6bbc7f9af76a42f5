package adapters

import (
	"regexp"
	"strings"
)

// vpnProviderRules map a name/description substring to a known VPN product.
// Ordered so that more specific markers win over generic ones.
var vpnProviderRules = []struct {
	substr   string
	provider string
}{
	{"nordlynx", "NordVPN"},
	{"lightway", "ExpressVPN"},
	{"anyconnect", "Cisco AnyConnect"},
	{"tailscale", "Tailscale"},
	{"cloudflare", "Cloudflare WARP"},
	{"zerotier", "ZeroTier"},
	{"proton", "Proton VPN"},
	{"wireguard", "WireGuard"},
	{"wg", "WireGuard"},
	{"tap-", "OpenVPN"},
	{"openvpn", "OpenVPN"},
}

var vmMarkers = []string{"hyper-v", "vmware", "virtualbox"}

var containerMarkers = []string{"docker", "wsl"}

// filterDriverPatterns match OS plumbing pseudo-adapters (filter shims that
// shadow a real interface). They are excluded from discovery entirely.
var filterDriverPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)wfp`),
	regexp.MustCompile(`(?i)qos packet scheduler`),
	regexp.MustCompile(`(?i)filter driver`),
	regexp.MustCompile(`(?i)^local area connection\* \d+`),
}

// IsFilterDriver reports whether the adapter is an internal filter shim
// rather than a real interface.
func IsFilterDriver(name, description string) bool {
	for _, re := range filterDriverPatterns {
		if re.MatchString(name) || re.MatchString(description) {
			return true
		}
	}
	return false
}

// Classify runs the ordered rule table against the adapter's name and
// description. Rules are checked VPN first, then hypervisor, container and
// tethering markers; anything unmatched is a physical adapter.
func Classify(name, description string, kind Kind) Classification {
	haystack := strings.ToLower(name + " " + description)

	for _, rule := range vpnProviderRules {
		if strings.Contains(haystack, rule.substr) {
			return Classification{Category: CategoryVPN, VPNProvider: rule.provider, IsVirtual: true}
		}
	}
	if kind == KindTunnel || kind == KindPPP {
		return Classification{Category: CategoryVPN, IsVirtual: true}
	}

	if strings.HasPrefix(strings.ToLower(name), "vethernet") {
		return Classification{Category: CategoryVirtualMachine, IsVirtual: true}
	}
	for _, marker := range vmMarkers {
		if strings.Contains(haystack, marker) {
			return Classification{Category: CategoryVirtualMachine, IsVirtual: true}
		}
	}

	for _, marker := range containerMarkers {
		if strings.Contains(haystack, marker) {
			return Classification{Category: CategoryContainer, IsVirtual: true}
		}
	}

	c := Classification{Category: CategoryPhysical}
	if strings.Contains(haystack, "rndis") || strings.Contains(haystack, "remote ndis") ||
		strings.Contains(haystack, "apple mobile device") {
		c.Tethering = TetheringUSB
	} else if strings.Contains(haystack, "bluetooth") && strings.Contains(haystack, "pan") {
		c.Tethering = TetheringBluetooth
	}
	return c
}
