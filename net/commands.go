package net

import (
	"github.com/mosaicnetworks/continuity/dag"
	"github.com/mosaicnetworks/continuity/peers"
)

// PullRequest asks a remote for the merge events it believes the
// caller is missing. The cursor carries the caller's position from the
// previous exchange; WantHashes requests specific events, used for
// targeted missing-parent fetches.
type PullRequest struct {
	FromID     string
	Cursor     *peers.Cursor
	WantHashes []string
}

// PullResponse returns an ordered batch of merge events plus the
// regular events they reference, and an updated cursor indicating the
// remote's commit horizon.
type PullResponse struct {
	FromID string
	Events []dag.WireEvent
	Cursor peers.Cursor
}

// NotifyRequest signals "I have new events". Fire and forget, no
// payload beyond the sender's identity.
type NotifyRequest struct {
	FromID  string
	NetAddr string
}

// NotifyResponse acknowledges a NotifyRequest.
type NotifyResponse struct {
	FromID string
}
