package netutil

import (
	"errors"
	"net"
)

// ErrNoAddress is returned when no interface has a usable IPv4 address.
var ErrNoAddress = errors.New("no network interface found")

// GetLocalIP returns the first non-loopback IPv4 address of an interface that
// is up. Clients send it as X-Real-IP so servers behind a trusted-subnet
// check can identify them.
func GetLocalIP() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addresses, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstIPv4(addresses); ip != nil {
			return ip.String(), nil
		}
	}

	return "", ErrNoAddress
}

func firstIPv4(addresses []net.Addr) net.IP {
	for _, addr := range addresses {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.To4() == nil {
			continue
		}
		return ip
	}
	return nil
}
