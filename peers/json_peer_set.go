package peers

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

const jsonPeerSetPath = "peers.json"

// JSONPeerSet persists the peer table to a json file under the data
// directory, so a restarted node remembers who it gossips with.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

func NewJSONPeerSet(base string) *JSONPeerSet {
	return &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
}

func (j *JSONPeerSet) PeerSet() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Peer{}, nil
		}
		return nil, err
	}

	var peers []*Peer
	if err := json.Unmarshal(buf, &peers); err != nil {
		return nil, err
	}

	return peers, nil
}

func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	raw, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(j.path, raw, 0600)
}
