package domain

// CallEvent is the tagged-variant event type consumed by the orchestrator's
// single event loop. Signaling frames, engine callbacks and local intents all
// become CallEvents so state mutation happens on one goroutine.
type CallEvent interface {
	callEvent()
}

// SignalReceived wraps one inbound signaling message.
type SignalReceived struct {
	Message SignalingMessage
}

// TransportOpened fires once the signaling channel is usable.
type TransportOpened struct{}

// TransportFailed reports a connect error, unexpected close or failed send.
type TransportFailed struct {
	Err error
}

// LocalDescription carries an offer or answer the engine has already applied
// locally and which must now be transmitted.
type LocalDescription struct {
	Type string // "offer" or "answer"
	SDP  string
}

// LocalCandidate is one locally gathered connectivity candidate.
type LocalCandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
}

// ConnStateChanged reports a transition of the peer connection's
// connectivity state.
type ConnStateChanged struct {
	State ConnState
}

// EngineFailed reports an unrecoverable negotiation or capture error.
type EngineFailed struct {
	Err error
}

// HangupRequested is the local user's end-call intent.
type HangupRequested struct{}

// MicToggled and VideoToggled are local mute/camera intents. They never
// trigger renegotiation.
type MicToggled struct {
	Enabled bool
}

type VideoToggled struct {
	Enabled bool
}

// CameraSwitchRequested asks the engine to swap the active capture device.
type CameraSwitchRequested struct{}

func (SignalReceived) callEvent()        {}
func (TransportOpened) callEvent()       {}
func (TransportFailed) callEvent()       {}
func (LocalDescription) callEvent()      {}
func (LocalCandidate) callEvent()        {}
func (ConnStateChanged) callEvent()      {}
func (EngineFailed) callEvent()          {}
func (HangupRequested) callEvent()       {}
func (MicToggled) callEvent()            {}
func (VideoToggled) callEvent()          {}
func (CameraSwitchRequested) callEvent() {}
