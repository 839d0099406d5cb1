package net

// Transport provides an interface for network transports to allow a
// node to communicate with its peers.
type Transport interface {
	// Consumer returns a channel that can be used to consume and
	// respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address to distinguish
	// from our peers.
	LocalAddr() string

	// Pull sends a PullRequest to the target node.
	Pull(target string, args *PullRequest, resp *PullResponse) error

	// Notify sends a NotifyRequest to the target node.
	Notify(target string, args *NotifyRequest, resp *NotifyResponse) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}

// WithPeers is an interface that a transport may provide which allows
// for connection and disconnection.
type WithPeers interface {
	Connect(peer string, t Transport)
	Disconnect(peer string)
	DisconnectAll()
}

// LoopbackTransport is an interface that provides a loopback transport
// suitable for testing, e.g. InmemTransport.
type LoopbackTransport interface {
	Transport
	WithPeers
}
