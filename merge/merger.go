package merge

import (
	"crypto/ed25519"
	"sort"
	"strconv"

	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/sirupsen/logrus"
)

// Config carries the merge policy. Thresholds are either absolute
// integers or the symbols "2f", "f", "1", resolved against the current
// witness set where 3f+1 = |witnesses|.
type Config struct {
	WitnessTargetThreshold  string
	WitnessMinimumThreshold string
	PeerMinimumThreshold    string

	// OperationReadyChance gates whether pending operations ride on
	// this merge, in [0,1].
	OperationReadyChance float64
}

func DefaultConfig() Config {
	return Config{
		WitnessTargetThreshold:  "2f",
		WitnessMinimumThreshold: "f",
		PeerMinimumThreshold:    "0",
		OperationReadyChance:    1.0,
	}
}

// ResolveThreshold turns a threshold value into an absolute count.
func ResolveThreshold(value string, witnessCount int) (int, error) {
	f := (witnessCount - 1) / 3
	if f < 0 {
		f = 0
	}

	switch value {
	case "2f":
		return 2 * f, nil
	case "f":
		return f, nil
	case "1":
		return 1, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, cm.NewError(cm.Syntax, "invalid threshold "+value)
	}
	return n, nil
}

// NodeContext identifies the merging node. Strategies take it
// explicitly; given identical context, inputs and random draw, the
// merger's output is fixed.
type NodeContext struct {
	Creator    string
	CreatorKey string
	PrivKey    ed25519.PrivateKey

	Witnesses        []string
	LastBlockHeight  int
	PendingOperation string
}

// Merger folds received heads into a locally-signed merge event.
type Merger struct {
	conf   Config
	store  *dag.EventStore
	rand   func() float64
	logger *logrus.Entry
}

func NewMerger(conf Config, store *dag.EventStore, rand func() float64, logger *logrus.Entry) *Merger {
	return &Merger{
		conf:   conf,
		store:  store,
		rand:   rand,
		logger: logger.WithField("component", "merger"),
	}
}

// Merge produces at most one merge event from the current local heads,
// or nil when thresholds cannot be met. The event is signed but not
// inserted.
func (m *Merger) Merge(ctx NodeContext) (*dag.Event, error) {
	witnessCount := len(ctx.Witnesses)

	witnessTarget, err := ResolveThreshold(m.conf.WitnessTargetThreshold, witnessCount)
	if err != nil {
		return nil, err
	}
	witnessMin, err := ResolveThreshold(m.conf.WitnessMinimumThreshold, witnessCount)
	if err != nil {
		return nil, err
	}
	peerMin, err := ResolveThreshold(m.conf.PeerMinimumThreshold, witnessCount)
	if err != nil {
		return nil, err
	}

	treeHead, err := m.store.GetLocalBranchHead(ctx.Creator)
	if err != nil {
		return nil, err
	}

	witnessSet := make(map[string]bool, witnessCount)
	for _, w := range ctx.Witnesses {
		witnessSet[w] = true
	}

	forked := m.store.ForkedCreators()

	//collect mergeable heads: one per creator, merge events not yet in
	//our ancestry, never two parents by the same creator, withheld
	//creators skipped
	witnessHeads := []string{}
	peerHeads := []string{}
	anyRemoteMerge := false

	creators := m.store.Creators()
	sort.Strings(creators)

	for _, creator := range creators {
		if creator == ctx.Creator || forked[creator] {
			continue
		}

		head, err := m.store.GetLocalBranchHead(creator)
		if err != nil {
			return nil, err
		}
		if head == "" || head == m.store.GenesisHash() {
			continue
		}
		anyRemoteMerge = true
		if head == treeHead || m.store.IsAncestor(head, treeHead) {
			//already merged
			continue
		}

		if witnessSet[creator] {
			witnessHeads = append(witnessHeads, head)
		} else {
			peerHeads = append(peerHeads, head)
		}
	}

	//a creator's very first merge, before any merge exists anywhere,
	//cannot meet thresholds: waive them so the ledger can start
	bootstrap := treeHead == m.store.GenesisHash() && !anyRemoteMerge

	if !bootstrap && (len(witnessHeads) < witnessMin || len(peerHeads) < peerMin) {
		m.logger.WithFields(logrus.Fields{
			"witness_heads": len(witnessHeads),
			"peer_heads":    len(peerHeads),
			"witness_min":   witnessMin,
			"peer_min":      peerMin,
		}).Debug("Merge thresholds not met")
		return nil, nil
	}

	//reach for the target without blocking on it
	if witnessTarget > witnessMin && len(witnessHeads) > witnessTarget {
		witnessHeads = witnessHeads[:witnessTarget]
	}

	parents := []string{treeHead}
	parents = append(parents, witnessHeads...)
	parents = append(parents, peerHeads...)

	//fold pending operations in when the draw allows
	if ctx.PendingOperation != "" && m.rand() < m.conf.OperationReadyChance {
		parents = append(parents, ctx.PendingOperation)
	}

	if len(parents) < 2 {
		//nothing new to merge
		return nil, nil
	}

	maxHeight := 0
	for _, p := range parents {
		parent, err := m.store.GetEvent(p)
		if err != nil {
			return nil, err
		}
		if parent.Body.MergeHeight > maxHeight {
			maxHeight = parent.Body.MergeHeight
		}
	}

	event := dag.NewMergeEvent(treeHead, parents, ctx.Creator, ctx.CreatorKey, maxHeight+1, ctx.LastBlockHeight)
	if err := event.Sign(ctx.PrivKey); err != nil {
		return nil, err
	}

	hash, _ := event.Hash()
	m.logger.WithFields(logrus.Fields{
		"hash":    hash,
		"parents": len(parents),
	}).Debug("Created merge event")

	return event, nil
}
