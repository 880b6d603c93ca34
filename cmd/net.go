package main

import (
	"fmt"
	"net/url"
	"strings"
)

// defaultPath is where servers accept client connections.
const defaultPath = "/client"

// serverURL turns host:port, or a url with an http or ws scheme, into the
// websocket url to dial.
func serverURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in server address", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", addr)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}
	return u.String(), nil
}
