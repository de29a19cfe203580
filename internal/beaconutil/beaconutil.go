// Package beaconutil resolves the local interface address and directed
// broadcast address an LCP node needs to send its discovery echoes.
// Adapted from gyre's beacon package, which joined a multicast group on
// a dedicated discovery port; LCP instead broadcasts ECHO frames over
// the single shared UDP socket, so only the address-discovery half of
// that logic survives here. golang.org/x/net/ipv4 is used to read the
// source-address control message off the shared socket the same way
// gyre's beacon reads it off its dedicated one.
package beaconutil

import (
	"errors"
	"net"
	"os"

	"golang.org/x/net/ipv4"
)

// ErrNoUsableInterface is returned when no broadcast-capable IPv4
// interface can be found.
var ErrNoUsableInterface = errors.New("beaconutil: no usable broadcast interface")

// Endpoint describes a network interface's own address and the
// directed-broadcast address reachable on it.
type Endpoint struct {
	Iface     *net.Interface
	Addr      net.IP
	Broadcast net.IP
}

// Resolve picks an interface to broadcast on. If ifaceName is non-empty
// it is used directly (also honoring the LCP_IFACE / BEACON_INTERFACE
// environment variables as a fallback, mirroring gyre's beacon
// environment-variable convention); otherwise every interface is tried
// in order until one yields a usable IPv4 broadcast address.
func Resolve(ifaceName string) (Endpoint, error) {
	if ifaceName == "" {
		ifaceName = os.Getenv("LCP_IFACE")
	}
	if ifaceName == "" {
		ifaceName = os.Getenv("BEACON_INTERFACE")
	}

	var candidates []net.Interface
	if ifaceName != "" {
		iface, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return Endpoint{}, err
		}
		candidates = []net.Interface{*iface}
	} else {
		ifs, err := net.Interfaces()
		if err != nil {
			return Endpoint{}, err
		}
		candidates = ifs
	}

	for i := range candidates {
		iface := candidates[i]
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			bcast := make(net.IP, len(ip4))
			copy(bcast, ip4)
			for i := 0; i < len(ipNet.Mask); i++ {
				bcast[i] |= ^ipNet.Mask[i]
			}
			return Endpoint{Iface: &iface, Addr: ip4, Broadcast: bcast}, nil
		}
	}

	return Endpoint{}, ErrNoUsableInterface
}

// SourceAddr reads the source IP a UDP packet arrived from, using the
// ipv4 control-message channel set up on the shared socket by EnableSourceTracking.
func SourceAddr(cm *ipv4.ControlMessage) net.IP {
	if cm == nil {
		return nil
	}
	return cm.Src
}

// EnableSourceTracking wraps a UDP connection in an ipv4.PacketConn with
// control messages enabled, so each receive can report which local
// interface/source address a datagram was delivered on. Grounded on
// gyre's beacon.go SetControlMessage(ipv4.FlagSrc, true) call.
func EnableSourceTracking(conn *net.UDPConn) (*ipv4.PacketConn, error) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagSrc, true); err != nil {
		return nil, err
	}
	return pc, nil
}
