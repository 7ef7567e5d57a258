package middleware

import (
	"context"
	"net"
	"net/http"

	"google.golang.org/grpc/peer"

	"github.com/manenim/gcra-limiter/pkg/limiter"
)

// ByRemoteIP keys requests by the host part of RemoteAddr.
func ByRemoteIP(ns limiter.Namespace) KeyFunc[limiter.Identity] {
	return func(r *http.Request) (limiter.Identity, bool) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host == "" {
			return limiter.Identity{}, false
		}
		return limiter.Identity{Namespace: ns, Key: host}, true
	}
}

// ByHeader keys requests by the value of a header. Requests without it are
// not limited.
func ByHeader(ns limiter.Namespace, name string) KeyFunc[limiter.Identity] {
	return func(r *http.Request) (limiter.Identity, bool) {
		v := r.Header.Get(name)
		if v == "" {
			return limiter.Identity{}, false
		}
		return limiter.Identity{Namespace: ns, Key: v}, true
	}
}

// ByPeer keys gRPC calls by the remote host of the connection.
func ByPeer(ns limiter.Namespace) GRPCKeyFunc[limiter.Identity] {
	return func(ctx context.Context, _ string) (limiter.Identity, bool) {
		p, ok := peer.FromContext(ctx)
		if !ok || p.Addr == nil {
			return limiter.Identity{}, false
		}
		addr := p.Addr.String()
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		return limiter.Identity{Namespace: ns, Key: host}, true
	}
}
