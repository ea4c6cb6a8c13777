package upstream

import (
	"context"
	"net"
)

// Dialer opens TCP connections to upstreams. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
