package p2p

import (
	"fmt"
	"net"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// DiscoverExternalAddr attempts a NAT-PMP port mapping for port so a node
// behind a home/office NAT can still be dialed at a stable external
// address (spec.md §4.8's bootstrap dialing assumes a peer's announced
// address is reachable). It is best-effort: callers treat failure as
// "stay with the configured ListenAddr", not a fatal condition.
//
// The gateway is located the same way go-ethereum's p2p/nat package
// guesses it absent UPnP/SSDP discovery: dial out on UDP, take the local
// interface address, and assume the gateway sits at that subnet's .1.
func DiscoverExternalAddr(port int) (string, error) {
	gatewayIP, err := discoverGateway()
	if err != nil {
		return "", fmt.Errorf("p2p: locate gateway: %w", err)
	}
	client := natpmp.NewClient(gatewayIP)
	if _, err := client.AddPortMapping("tcp", port, port, 3600); err != nil {
		return "", fmt.Errorf("p2p: nat-pmp port mapping: %w", err)
	}
	ext, err := client.GetExternalAddress()
	if err != nil {
		return "", fmt.Errorf("p2p: nat-pmp external address: %w", err)
	}
	ip := net.IPv4(ext.ExternalIPAddress[0], ext.ExternalIPAddress[1], ext.ExternalIPAddress[2], ext.ExternalIPAddress[3])
	return fmt.Sprintf("%s:%d", ip.String(), port), nil
}

func discoverGateway() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr).IP.To4()
	if local == nil {
		return nil, fmt.Errorf("p2p: no IPv4 local address")
	}
	gw := make(net.IP, len(local))
	copy(gw, local)
	gw[len(gw)-1] = 1
	return gw, nil
}
