// Package netutil picks a free listen address for the dashboard.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNoBindAddr is returned when neither the preferred address nor any
// candidate can be listened on.
var ErrNoBindAddr = errors.New("no available dashboard bind addresses")

// SelectBindAddr returns preferred when it is free. Otherwise, with
// autoFallback set, it returns the first free candidate.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		ok, err := IsAddrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("preferred bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ok, err := IsAddrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", ErrNoBindAddr
}

// CandidateAddrs joins host with each entry of ports. Entries that already
// carry a host are kept as they are.
func CandidateAddrs(host string, ports []string) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, ":") {
			out = append(out, p)
			continue
		}
		out = append(out, net.JoinHostPort(host, p))
	}
	return out
}

// IsAddrAvailable returns true when an address can be listened on.
func IsAddrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
