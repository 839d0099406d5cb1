package peers

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RegistryConfig carries the reputation and backoff knobs.
type RegistryConfig struct {
	MaxFailure            time.Duration
	MinFailure            time.Duration
	MaxFailureGracePeriod time.Duration
	MaxIdle               time.Duration
	MinIdle               time.Duration
	MaxIdleGracePeriod    time.Duration

	// PeerCapacity is the total peer table target: 100 productive
	// slots plus 10 untrusted.
	PeerCapacity int
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxFailure:            10 * time.Minute,
		MinFailure:            10 * time.Second,
		MaxFailureGracePeriod: 24 * time.Hour,
		MaxIdle:               10 * time.Minute,
		MinIdle:               10 * time.Second,
		MaxIdleGracePeriod:    24 * time.Hour,
		PeerCapacity:          110,
	}
}

// SuccessReport is the outcome of a successful gossip session.
type SuccessReport struct {
	MergeEventsReceived int
	Cursor              *Cursor
	LocalBlockHeight    int
}

// FailureReport is the outcome of a failed gossip session. Fatal
// failures are protocol violations and delete the peer outright.
type FailureReport struct {
	Err    error
	Cursor *Cursor
	Fatal  bool
}

// Registry is the set of known remote peers with reputation, backoff
// and idle accounting. It drives candidate selection.
type Registry struct {
	conf   RegistryConfig
	logger *logrus.Entry

	byID      map[string]*Peer
	witnesses map[string]bool

	sync.RWMutex
}

func NewRegistry(conf RegistryConfig, logger *logrus.Entry) *Registry {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Registry{
		conf:      conf,
		logger:    logger,
		byID:      make(map[string]*Peer),
		witnesses: make(map[string]bool),
	}
}

// Upsert adds a peer on discovery, or refreshes its address.
func (r *Registry) Upsert(peer *Peer) {
	r.Lock()
	defer r.Unlock()

	if existing, ok := r.byID[peer.ID]; ok {
		existing.NetAddr = peer.NetAddr
		existing.Sequence++
		return
	}

	r.byID[peer.ID] = peer
}

// Get returns a peer by id.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.RLock()
	defer r.RUnlock()

	p, ok := r.byID[id]
	return p, ok
}

// Remove deletes a peer.
func (r *Registry) Remove(id string) {
	r.Lock()
	defer r.Unlock()

	delete(r.byID, id)
}

// Len returns the peer table size.
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.byID)
}

// SetWitnesses replaces the current witness set. Witnesses are never
// pruned and their reputation clamps at 0 instead of deletion.
func (r *Registry) SetWitnesses(ids []string) {
	r.Lock()
	defer r.Unlock()

	r.witnesses = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.witnesses[id] = true
	}
}

// IsWitness reports whether a peer is in the current witness set.
func (r *Registry) IsWitness(id string) bool {
	r.RLock()
	defer r.RUnlock()

	return r.witnesses[id]
}

// Candidates returns the peers whose backoff has expired, ordered by
// (recommended desc, reputation desc, lastPullAt asc).
func (r *Registry) Candidates(now time.Time) []*Peer {
	r.RLock()
	defer r.RUnlock()

	res := []*Peer{}
	for _, p := range r.byID {
		if !p.Status.BackoffUntil.After(now) {
			res = append(res, p)
		}
	}

	sort.Sort(ByCandidateOrder(res))

	return res
}

// Count returns the number of peers with reputation <= maxReputation.
func (r *Registry) Count(maxReputation int) int {
	r.RLock()
	defer r.RUnlock()

	count := 0
	for _, p := range r.byID {
		if p.Reputation <= maxReputation {
			count++
		}
	}
	return count
}

// EarliestBackoff returns the soonest BackoffUntil among all peers.
// Zero time when the table is empty. The node's worker loop does not
// call it; cycle timing comes from the control timer.
func (r *Registry) EarliestBackoff() time.Time {
	r.RLock()
	defer r.RUnlock()

	var earliest time.Time
	for _, p := range r.byID {
		if earliest.IsZero() || p.Status.BackoffUntil.Before(earliest) {
			earliest = p.Status.BackoffUntil
		}
	}
	return earliest
}

// RecordSuccess applies the success handler of the reputation
// algorithm.
func (r *Registry) RecordSuccess(id string, report SuccessReport) {
	r.recordSuccessAt(id, report, time.Now().UTC())
}

func (r *Registry) recordSuccessAt(id string, report SuccessReport, now time.Time) {
	r.Lock()
	defer r.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return
	}

	p.Status.ConsecutiveFailures = 0
	p.Status.FirstFailure = nil
	p.Status.BackoffUntil = now
	p.Status.LastPullAt = now
	p.Status.LastPullResult = "success"
	p.Sequence++

	if report.Cursor != nil {
		p.Status.Cursor = report.Cursor
		p.Status.RequiredBlockHeight = report.Cursor.RequiredBlockHeight
	}

	if report.MergeEventsReceived > 0 {
		if p.Reputation < 100 {
			p.Reputation++
		}
		p.Status.Idle = nil
	} else if p.Status.Idle == nil {
		p.Status.Idle = &IdleSnapshot{
			Time:             now,
			LocalBlockHeight: report.LocalBlockHeight,
		}
	} else if report.LocalBlockHeight == p.Status.Idle.LocalBlockHeight {
		//everyone is idle, no penalty
		p.Status.Idle.Time = now
	} else {
		//others advanced while this peer had nothing to offer
		timePerPoint := r.conf.MaxIdleGracePeriod / 100
		if r.conf.MaxIdleGracePeriod%100 != 0 {
			timePerPoint++
		}
		points := int(now.Sub(p.Status.Idle.Time) / timePerPoint)
		if points > 0 {
			p.Reputation -= points
			p.Status.Idle.Time = p.Status.Idle.Time.Add(time.Duration(points) * timePerPoint)

			extra := r.conf.MinIdle * time.Duration(points)
			if extra < r.conf.MinIdle {
				extra = r.conf.MinIdle
			}
			if extra > r.conf.MaxIdle {
				extra = r.conf.MaxIdle
			}
			p.Status.BackoffUntil = now.Add(extra)
		}
		p.Status.Idle.LocalBlockHeight = report.LocalBlockHeight

		if p.Reputation < 0 {
			if r.witnesses[id] {
				p.Reputation = 0
			} else {
				delete(r.byID, id)
				r.logger.WithField("peer", id).Debug("Peer pruned: idle reputation exhausted")
				return
			}
		}
	}

	//capacity rule: a productive table keeps at most 100 zero-trust
	//slots; a non-witness that gossips successfully while still at 0
	//is displaced when the table is saturated
	if !r.witnesses[id] && p.Reputation == 0 && r.countLocked(0) >= r.conf.PeerCapacity-10 {
		delete(r.byID, id)
		r.logger.WithField("peer", id).Debug("Peer dropped: at capacity")
	}
}

// RecordFailure applies the failure handler of the reputation
// algorithm.
func (r *Registry) RecordFailure(id string, report FailureReport) {
	r.recordFailureAt(id, report, time.Now().UTC())
}

func (r *Registry) recordFailureAt(id string, report FailureReport, now time.Time) {
	r.Lock()
	defer r.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return
	}

	if report.Fatal {
		delete(r.byID, id)
		r.logger.WithFields(logrus.Fields{
			"peer":  id,
			"error": report.Err,
		}).Warn("Peer deleted: protocol violation")
		return
	}

	p.Status.ConsecutiveFailures++
	p.Status.LastPullAt = now
	p.Status.LastPullResult = "failure"
	p.Sequence++

	//the cursor is preserved unless the report carries a new one
	if report.Cursor != nil {
		p.Status.Cursor = report.Cursor
	}

	if p.Status.ConsecutiveFailures == 1 {
		p.Status.FirstFailure = &FailureSnapshot{
			Time:       now,
			Reputation: p.Reputation,
		}
		p.Reputation--
	} else if p.Status.FirstFailure != nil {
		start := p.Status.FirstFailure.Reputation
		elapsed := now.Sub(p.Status.FirstFailure.Time)
		points := int(elapsed/r.conf.MaxFailureGracePeriod) * 100
		rep := start - points
		if rep > start-1 {
			rep = start - 1
		}
		p.Reputation = rep
	}

	if p.Reputation < 0 {
		if r.witnesses[id] {
			p.Reputation = 0
		} else {
			delete(r.byID, id)
			r.logger.WithFields(logrus.Fields{
				"peer":  id,
				"error": report.Err,
			}).Debug("Peer pruned: reputation exhausted")
			return
		}
	}

	backoff := time.Duration(p.Status.ConsecutiveFailures) * r.conf.MinFailure
	if backoff > r.conf.MaxFailure {
		backoff = r.conf.MaxFailure
	}
	p.Status.BackoffUntil = now.Add(backoff)
}

func (r *Registry) countLocked(maxReputation int) int {
	count := 0
	for _, p := range r.byID {
		if p.Reputation <= maxReputation {
			count++
		}
	}
	return count
}
