// Package ports picks local TCP ports for the browser host.
package ports

import (
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
)

const (
	searchRange = 1000
	maxAttempts = 50
)

// Listen binds host:port. When port is taken it tries random ports in
// [port, port+1000]; port 0 lets the OS choose.
func Listen(host string, port int) (net.Listener, error) {
	if l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port))); err == nil || port == 0 {
		return l, err
	}

	minPort, maxPort := portRange(port)
	for attempts := 0; attempts < maxAttempts; attempts++ {
		candidate := minPort + rand.IntN(maxPort-minPort+1)
		if l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(candidate))); err == nil {
			return l, nil
		}
	}
	return nil, fmt.Errorf("unable to find available port after %d attempts in range %d-%d", maxAttempts, minPort, maxPort)
}

// Port returns the TCP port of a listener address
func Port(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}

func portRange(start int) (int, int) {
	maxPort := start + searchRange
	if maxPort > 65535 {
		maxPort = 65535
	}
	return start, maxPort
}
