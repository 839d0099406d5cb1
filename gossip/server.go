package gossip

import (
	"sort"
	"strings"

	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/net"
	"github.com/mosaicnetworks/continuity/peers"
	"github.com/sirupsen/logrus"
)

// Server answers pull and notify requests from the local store. It
// never writes to the store; the worker owns all writes.
type Server struct {
	localID string
	store   *dag.EventStore
	logger  *logrus.Entry

	// notifyCh coalesces notify signals into worker wake-ups
	notifyCh chan string
}

func NewServer(localID string, store *dag.EventStore, logger *logrus.Entry) *Server {
	return &Server{
		localID:  localID,
		store:    store,
		logger:   logger.WithField("component", "gossip-server"),
		notifyCh: make(chan string, 1),
	}
}

// NotifyCh delivers the ids of peers that signalled new events. The
// channel has capacity 1: concurrent signals coalesce.
func (s *Server) NotifyCh() <-chan string {
	return s.notifyCh
}

// HandleRPC dispatches one inbound RPC.
func (s *Server) HandleRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.PullRequest:
		s.handlePull(rpc, cmd)
	case *net.NotifyRequest:
		s.handleNotify(rpc, cmd)
	default:
		s.logger.WithField("command", cmd).Error("Unexpected RPC command")
		rpc.Respond(nil, cm.NewError(cm.Validation, "unexpected command"))
	}
}

func (s *Server) handleNotify(rpc net.RPC, cmd *net.NotifyRequest) {
	select {
	case s.notifyCh <- cmd.FromID:
	default:
		//a wake-up is already pending
	}

	rpc.Respond(&net.NotifyResponse{FromID: s.localID}, nil)
}

func (s *Server) handlePull(rpc net.RPC, cmd *net.PullRequest) {
	resp := &net.PullResponse{
		FromID: s.localID,
		Cursor: peers.Cursor{
			Generation:          s.store.ConsensusEventCount(),
			RequiredBlockHeight: s.store.LastBlockHeight(),
		},
	}

	if len(cmd.WantHashes) > 0 {
		events, err := s.wantedEvents(cmd.WantHashes)
		if err != nil {
			rpc.Respond(nil, err)
			return
		}
		resp.Events = events
		rpc.Respond(resp, nil)
		return
	}

	events, err := s.missingEvents(cmd.Cursor)
	if err != nil {
		rpc.Respond(nil, err)
		return
	}
	resp.Events = events

	s.logger.WithFields(logrus.Fields{
		"from":   cmd.FromID,
		"events": len(resp.Events),
	}).Debug("Answered pull")

	rpc.Respond(resp, nil)
}

func (s *Server) wantedEvents(hashes []string) ([]dag.WireEvent, error) {
	res := make([]dag.WireEvent, 0, len(hashes))
	for _, h := range hashes {
		event, err := s.store.GetEvent(h)
		if err != nil {
			return nil, cm.WrapError(cm.NotFound, h, err)
		}
		res = append(res, event.ToWire())
	}
	return res, nil
}

// missingEvents returns committed events of blocks beyond the caller's
// horizon, followed by every uncommitted event, parents before
// children.
func (s *Server) missingEvents(cursor *peers.Cursor) ([]dag.WireEvent, error) {
	res := []dag.WireEvent{}

	from := 0
	if cursor != nil {
		from = cursor.RequiredBlockHeight + 1
	}
	for h := from; h <= s.store.LastBlockHeight(); h++ {
		block, err := s.store.GetBlock(h)
		if err != nil {
			return nil, err
		}
		for _, hash := range block.EventHashes() {
			event, err := s.store.GetEvent(hash)
			if err != nil {
				return nil, err
			}
			if event.Signature == "" {
				//genesis events are derived, not gossiped
				continue
			}
			res = append(res, event.ToWire())
		}
	}

	slice, err := s.store.GetRecentHistory()
	if err != nil {
		return nil, err
	}

	pending := make([]*dag.Event, 0, len(slice.Events))
	for _, event := range slice.Events {
		pending = append(pending, event)
	}
	sort.Sort(dag.ByConsensusOrder(pending))

	for _, event := range pending {
		res = append(res, event.ToWire())
	}

	return res, nil
}

// IsNotFound reports whether an RPC error string names an unknown
// ledger or event. The transport flattens errors to strings.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), cm.NotFound.String())
}
