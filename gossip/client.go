package gossip

import (
	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/net"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// maxFetchRounds bounds the recursive missing-parent fetch of a single
// pull session.
const maxFetchRounds = 10

// Client drives pull sessions against remote peers and records their
// outcome in the registry.
type Client struct {
	localID  string
	trans    net.Transport
	store    *dag.EventStore
	registry *peers.Registry
	logger   *logrus.Entry
}

func NewClient(localID string, trans net.Transport, store *dag.EventStore, registry *peers.Registry, logger *logrus.Entry) *Client {
	return &Client{
		localID:  localID,
		trans:    trans,
		store:    store,
		registry: registry,
		logger:   logger.WithField("component", "gossip-client"),
	}
}

// Notify signals a remote peer that we have new events. Fire and
// forget: failures only feed backoff.
func (c *Client) Notify(peer *peers.Peer) {
	req := &net.NotifyRequest{FromID: c.localID, NetAddr: c.trans.LocalAddr()}
	var resp net.NotifyResponse

	if err := c.trans.Notify(peer.NetAddr, req, &resp); err != nil {
		c.logger.WithError(err).WithField("peer", peer.ID).Debug("Notify failed")
	}
}

// Pull runs one gossip session with a peer: pull a batch, integrate it
// into the store, chase missing parents, and record the outcome. The
// returned count is the number of merge events integrated.
func (c *Client) Pull(peer *peers.Peer) (int, error) {
	req := &net.PullRequest{
		FromID: c.localID,
		Cursor: peer.Status.Cursor,
	}

	var resp net.PullResponse
	if err := c.trans.Pull(peer.NetAddr, req, &resp); err != nil {
		return 0, c.fail(peer, err)
	}

	merges, err := c.integrate(peer, resp.Events)
	if err != nil {
		return merges, err
	}

	cursor := resp.Cursor
	c.registry.RecordSuccess(peer.ID, peers.SuccessReport{
		MergeEventsReceived: merges,
		Cursor:              &cursor,
		LocalBlockHeight:    c.store.LastBlockHeight(),
	})

	return merges, nil
}

// integrate inserts a batch, chasing missing parents with bounded
// targeted fetches.
func (c *Client) integrate(peer *peers.Peer, events []dag.WireEvent) (int, error) {
	merges := 0
	pending := events

	for round := 0; round < maxFetchRounds; round++ {
		missing := map[string]bool{}
		retry := []dag.WireEvent{}

		for _, wire := range pending {
			event := dag.FromWire(wire)

			err := c.store.Insert(event, dag.OriginPeer)
			switch {
			case err == nil:
				if event.IsMerge() {
					merges++
				}
			case cm.Is(err, cm.Duplicate):
				//benign on gossip
			case cm.Is(err, cm.MissingParents):
				for _, h := range err.(*cm.Error).Hashes {
					missing[h] = true
				}
				retry = append(retry, wire)
			default:
				//malformed payload: the session is fatal and the peer
				//is deleted
				c.registry.RecordFailure(peer.ID, peers.FailureReport{Err: err, Fatal: true})
				return merges, err
			}
		}

		if len(retry) == 0 {
			return merges, nil
		}

		want := make([]string, 0, len(missing))
		for h := range missing {
			want = append(want, h)
		}

		var resp net.PullResponse
		req := &net.PullRequest{FromID: c.localID, WantHashes: want}
		if err := c.trans.Pull(peer.NetAddr, req, &resp); err != nil {
			return merges, c.fail(peer, err)
		}

		pending = append(resp.Events, retry...)
	}

	err := cm.NewError(cm.Validation, "missing parents unresolved after bounded fetch")
	c.registry.RecordFailure(peer.ID, peers.FailureReport{Err: err, Fatal: true})
	return merges, err
}

// fail maps a transport error to the registry. Unknown-ledger answers
// are session-fatal; everything else drives backoff.
func (c *Client) fail(peer *peers.Peer, err error) error {
	if IsNotFound(err) {
		mapped := cm.WrapError(cm.NotFound, "ledger unknown at "+peer.NetAddr, err)
		c.registry.RecordFailure(peer.ID, peers.FailureReport{Err: mapped})
		return mapped
	}

	c.registry.RecordFailure(peer.ID, peers.FailureReport{Err: err})
	return err
}
