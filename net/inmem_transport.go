package net

import (
	"fmt"
	"sync"
	"time"

	cm "github.com/mosaicnetworks/continuity/common"
)

// InmemTransport implements the Transport interface for in-memory
// peers, e.g. tests. It requires no real network. It adds no latency;
// each request waits at most a fixed timeout for its response.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]Transport
	timeout    time.Duration
}

var inmemAddrSeq int
var inmemAddrLock sync.Mutex

// NewInmemAddr returns a fresh unique loopback address.
func NewInmemAddr() string {
	inmemAddrLock.Lock()
	defer inmemAddrLock.Unlock()
	inmemAddrSeq++
	return fmt.Sprintf("inmem-%d", inmemAddrSeq)
}

// NewInmemTransport is used to initialize a new transport and
// generates a random local address if none is specified.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]Transport),
		timeout:    50 * time.Millisecond,
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// Pull implements the Transport interface.
func (i *InmemTransport) Pull(target string, args *PullRequest, resp *PullResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	out := rpcResp.Response.(*PullResponse)
	*resp = *out
	return nil
}

// Notify implements the Transport interface.
func (i *InmemTransport) Notify(target string, args *NotifyRequest, resp *NotifyResponse) error {
	rpcResp, err := i.makeRPC(target, args, i.timeout)
	if err != nil {
		return err
	}

	out := rpcResp.Response.(*NotifyResponse)
	*resp = *out
	return nil
}

func (i *InmemTransport) makeRPC(target string, args interface{}, timeout time.Duration) (RPCResponse, error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		return RPCResponse{}, &cm.NetworkError{
			Address: target,
			Cause:   fmt.Errorf("failed to connect to peer: %v", target),
		}
	}

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	inmem := peer.(*InmemTransport)
	inmem.consumerCh <- RPC{
		Command:  args,
		RespChan: respCh,
	}

	// Wait for a response
	select {
	case rpcResp := <-respCh:
		if rpcResp.Error != nil {
			return rpcResp, rpcResp.Error
		}
		return rpcResp, nil
	case <-time.After(timeout):
		return RPCResponse{}, &cm.NetworkError{
			Address: target,
			Cause:   fmt.Errorf("command timed out"),
		}
	}
}

// Connect is used to connect this transport to another transport for a
// given peer name.
func (i *InmemTransport) Connect(peer string, t Transport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = t
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]Transport)
}

// Close is used to permanently disable the transport.
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	return nil
}
