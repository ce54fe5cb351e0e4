// Package originresolve resolves the daemon's configured origin address: a
// hostname, dotted IPv4 literal, or local network interface name, the same
// three forms original_source/src/munged/net.c's net_get_hostaddr accepts.
// The resolved address is stamped into every credential's Inner.Addr field
// (spec §4.2) and is itself the IP that a client bound to when the
// credential was encoded.
package originresolve

import (
	"fmt"
	"net"
	"os"
)

func hostname() (string, error) { return os.Hostname() }

// Resolve interprets name as, in order, a local network interface name, an
// IPv4 literal, or a hostname, and returns the first IPv4 address found
// together with the matching interface name when the match was an
// interface (empty otherwise). It mirrors
// _net_get_hostaddr_via_ifaddrs's preference for a local interface match
// over a plain hostname lookup.
func Resolve(name string) (addr net.IP, ifname string, err error) {
	if name == "" {
		return nil, "", fmt.Errorf("originresolve: empty name")
	}

	if ip, iface, ok := resolveInterfaceName(name); ok {
		return ip, iface, nil
	}
	if ip := net.ParseIP(name); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			if iface := matchInterfaceAddr(v4); iface != "" {
				return v4, iface, nil
			}
			return v4, "", nil
		}
		return nil, "", fmt.Errorf("originresolve: %s is not an IPv4 address", name)
	}

	ips, err := net.LookupIP(name)
	if err != nil {
		return nil, "", fmt.Errorf("originresolve: lookup %q: %w", name, err)
	}
	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		if iface := matchInterfaceAddr(v4); iface != "" {
			return v4, iface, nil
		}
		return v4, "", nil
	}
	return nil, "", fmt.Errorf("originresolve: %q has no IPv4 address", name)
}

// HostIPv4 resolves the machine's own hostname to an IPv4 address, used
// when the daemon is not configured with an explicit origin.
func HostIPv4() (net.IP, error) {
	host, err := hostname()
	if err != nil {
		return nil, err
	}
	ip, _, err := Resolve(host)
	return ip, err
}

func resolveInterfaceName(name string) (net.IP, string, bool) {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil, "", false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, "", false
	}
	for _, a := range addrs {
		if ip := ipFromAddr(a); ip != nil {
			if v4 := ip.To4(); v4 != nil {
				return v4, iface.Name, true
			}
		}
	}
	return nil, "", false
}

func matchInterfaceAddr(target net.IP) string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ip := ipFromAddr(a); ip != nil && ip.Equal(target) {
				return iface.Name
			}
		}
	}
	return ""
}

func ipFromAddr(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}
