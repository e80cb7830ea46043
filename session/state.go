package session

// State is where a session is in the call lifecycle
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateAwaitingPeer
	StateOffering
	StateAnswering
	StateConnected
	StateEnded
	// StateFailed is the local terminal state after a media or signaling
	// error. It is not part of the call graph; a new session is required.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateAcquiringMedia: "acquiring_media",
	StateAwaitingPeer:   "awaiting_peer",
	StateOffering:       "offering",
	StateAnswering:      "answering",
	StateConnected:      "connected",
	StateEnded:          "ended",
	StateFailed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the session can no longer change state
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// negotiating reports whether a peer handshake is underway or complete
func (s State) negotiating() bool {
	return s == StateOffering || s == StateAnswering || s == StateConnected
}
