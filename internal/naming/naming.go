// Package naming holds the naming conventions anvil uses for host-side
// objects: logical volume identities and device paths, seed image names,
// configuration identities, and the MAC and tap names derived from a
// machine's address.
package naming

import (
	"bytes"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/3th1nk/cidr"
)

// BridgePrefixLength is the prefix length of the hypervisor bridge network.
const BridgePrefixLength = 24

// parseIPv4 accepts "10.1.2.3" or "10.1.2.3/24".
func parseIPv4(ip string) (net.IP, error) {
	ipStr := ip
	if strings.Contains(ip, "/") {
		ipAddr, _, err := net.ParseCIDR(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR: %w", err)
		}
		ipStr = ipAddr.String()
	}

	parsedIP := net.ParseIP(ipStr)
	if parsedIP == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipStr)
	}

	ipv4 := parsedIP.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("not an IPv4 address: %s", ipStr)
	}
	return ipv4, nil
}

// MACFromIP calculates a deterministic MAC address from an IP address.
// Uses the locally administered prefix be:ef:.
//
// Example: IP 10.55.22.22 → MAC be:ef:0a:37:16:16
func MACFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("be:ef:%02x:%02x:%02x:%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// InterfaceNameFromIP calculates a deterministic tap interface name from
// an IP address, well within the 15 character Linux limit.
//
// Example: IP 10.55.22.22 → vm0a371616
func InterfaceNameFromIP(ip string) (string, error) {
	ipv4, err := parseIPv4(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vm%02x%02x%02x%02x",
		ipv4[0], ipv4[1], ipv4[2], ipv4[3]), nil
}

// VolumeID returns the identity of a logical volume: {vg}/{name}.
func VolumeID(volumeGroup, name string) string {
	return volumeGroup + "/" + name
}

// ParseVolumeID splits a VolumeID back into volume group and name.
func ParseVolumeID(id string) (volumeGroup, name string, err error) {
	vg, n, ok := strings.Cut(id, "/")
	if !ok || vg == "" || n == "" || strings.Contains(n, "/") {
		return "", "", fmt.Errorf("invalid volume id: %q", id)
	}
	return vg, n, nil
}

// DevicePath returns the block device path of a logical volume.
func DevicePath(volumeGroup, name string) string {
	return fmt.Sprintf("/dev/%s/%s", volumeGroup, name)
}

// SeedImageName returns the volume name of a machine's boot configuration
// image: user-data-{name}.iso.
func SeedImageName(machine string) string {
	return fmt.Sprintf("user-data-%s.iso", machine)
}

// ConfigurationID returns {host}/{source base name up to its first dot}.
// Every extension is dropped, so node.v2.yaml yields node.
func ConfigurationID(host, sourcePath string) string {
	stem, _, _ := strings.Cut(filepath.Base(sourcePath), ".")
	return host + "/" + stem
}

// CheckBridgeSubnet returns an error unless address lies in the /24 network
// of gateway.
func CheckBridgeSubnet(address, gateway string) error {
	addr, err := parseIPv4(address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	gw, err := parseIPv4(gateway)
	if err != nil {
		return fmt.Errorf("invalid gateway: %w", err)
	}

	subnet := fmt.Sprintf("%s/%d", gw, BridgePrefixLength)
	network, err := cidr.Parse(subnet)
	if err != nil {
		return fmt.Errorf("invalid bridge network: %w", err)
	}
	start, end := network.IPRange()
	if bytes.Compare(addr, start.To4()) < 0 || bytes.Compare(addr, end.To4()) > 0 {
		return fmt.Errorf("address %s is outside the bridge network of %s", address, subnet)
	}
	return nil
}
