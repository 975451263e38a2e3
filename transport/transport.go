package transport

import (
	"context"
	"net"
	"strconv"
	"strings"
)

const (
	MinPort = 1
	MaxPort = 65535
)

// Server is a long running listener owned by the application lifecycle
type Server interface {
	// Run starts the server and blocks until it stops
	Run() error
	// Shutdown gracefully shuts down the server
	Shutdown(context.Context) error
}

// ValidateAddress reports whether addr is a usable host:port listen address.
// The host may be empty to listen on every interface.
func ValidateAddress(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if host != "" && net.ParseIP(host) == nil && !validHostname(host) {
		return false
	}
	p, err := strconv.Atoi(port)
	return err == nil && p >= MinPort && p <= MaxPort
}

func validHostname(host string) bool {
	if len(host) > 253 || strings.HasPrefix(host, "-") || strings.HasSuffix(host, "-") {
		return false
	}
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}
