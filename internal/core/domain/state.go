package domain

// CallState is the orchestrator-visible lifecycle of one call attempt.
type CallState string

const (
	StateIdle          CallState = "idle"
	StateBootstrapping CallState = "bootstrapping"
	StateAwaitingPeer  CallState = "awaiting_peer"
	StateNegotiating   CallState = "negotiating"
	StateConnected     CallState = "connected"
	StateEnded         CallState = "ended"
	StateFailed        CallState = "failed"
)

// Terminal reports whether a call attempt can never leave this state.
func (s CallState) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// ConnState mirrors the transport-level ICE connectivity state machine.
type ConnState string

const (
	ConnStateNew          ConnState = "new"
	ConnStateChecking     ConnState = "checking"
	ConnStateConnected    ConnState = "connected"
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateFailed       ConnState = "failed"
	ConnStateClosed       ConnState = "closed"
)

// CallOutcome classifies how a finished call ended.
type CallOutcome string

const (
	OutcomeCompleted CallOutcome = "completed"
	OutcomeFailed    CallOutcome = "failed"
	OutcomeAborted   CallOutcome = "aborted"
)
