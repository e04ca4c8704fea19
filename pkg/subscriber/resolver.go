package subscriber

import "context"

// ResolvedAddress is a socket-dialable network address produced by an
// AddressResolver: a multicast group, a broker host, or any other
// endpoint a Scheduler's Socket implementation can connect to.
type ResolvedAddress struct {
	// Network is "udp", "ethernet" or "mqtt", matching the transport
	// package's dialer naming.
	Network string

	// Address is the host:port (or interface name, for raw Ethernet)
	// to dial.
	Address string
}

// AddressResolver looks up the network address backing a named PubSub
// connection. A scheduler that is configured with a symbolic name
// instead of a literal address (e.g. a broker's mDNS service instance)
// resolves it through this interface before dialing its Socket.
//
// pkg/subscriber never imports pkg/discovery directly; a caller wires a
// discovery.Resolver in wherever a name needs resolving, keeping the
// scheduler ignorant of mDNS.
type AddressResolver interface {
	Resolve(ctx context.Context, name string) (ResolvedAddress, error)
}
