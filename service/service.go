package service

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	cm "github.com/mosaicnetworks/continuity/common"
	"github.com/mosaicnetworks/continuity/node"
	"github.com/sirupsen/logrus"
)

// Service exposes the node over HTTP: stats, blocks, peers, operation
// submission, and a websocket block stream.
type Service struct {
	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
	upgrader    websocket.Upgrader
	start       time.Time
}

func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	return &Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger.WithField("component", "service"),
		upgrader:    websocket.Upgrader{},
		start:       time.Now(),
	}
}

// Serve registers the API routes and blocks serving them.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Service serving")

	r := mux.NewRouter()
	r.HandleFunc("/stats", s.GetStats).Methods("GET")
	r.HandleFunc("/blocks/{height:[0-9]+}", s.GetBlock).Methods("GET")
	r.HandleFunc("/peers", s.GetPeers).Methods("GET")
	r.HandleFunc("/operations", s.SubmitOperation).Methods("POST")
	r.HandleFunc("/ws/blocks", s.StreamBlocks)

	if err := http.ListenAndServe(s.bindAddress, r); err != nil {
		s.logger.WithError(err).Error("Service failed")
	}
}

func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()
	stats["started"] = humanize.Time(s.start)

	writeJSON(w, stats)
}

func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.Atoi(mux.Vars(r)["height"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	block, err := s.node.Core().Store().GetBlock(height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	hash, _ := block.Hash()
	writeJSON(w, map[string]interface{}{
		"blockHash": hash,
		"block":     block.Body,
	})
}

func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Core().Registry().Candidates(time.Time{}))
}

func (s *Service) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	op, err := ioutil.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.Submit(op); err != nil {
		status := http.StatusBadRequest
		if cm.Is(err, cm.Load) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// StreamBlocks pushes block heights over a websocket as they commit.
func (s *Service) StreamBlocks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	last := -1
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		height := s.node.Core().Store().LastBlockHeight()
		if height <= last {
			continue
		}

		for h := last + 1; h <= height; h++ {
			block, err := s.node.Core().Store().GetBlock(h)
			if err != nil {
				continue
			}
			hash, _ := block.Hash()
			payload, _ := json.Marshal(map[string]interface{}{
				"height":    h,
				"blockHash": hash,
				"events":    len(block.EventHashes()),
			})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		last = height
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
