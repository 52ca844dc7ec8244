package ports

import (
	"context"

	"telecare/internal/core/domain"
)

// SignalingTransport is one full-duplex signaling channel to the call
// coordination server, scoped to a single call. All inbound events are
// delivered asynchronously to the single listener registered before Connect.
type SignalingTransport interface {
	// Connect opens the channel. Failures after dial (unexpected close, read
	// errors, missed keep-alive) are reported through the listener, never by
	// panicking. The channel is usable only after the listener's Opened
	// callback fired.
	Connect(ctx context.Context) error
	// Send serializes and transmits one message. It returns an error when the
	// channel is not currently open; delivery is not acknowledged.
	Send(msg domain.SignalingMessage) error
	// Close closes the channel with a normal-closure code. Idempotent and
	// safe to call at any time, including after a failure.
	Close() error
}

// TransportListener receives all transport events.
type TransportListener interface {
	OnOpened()
	OnMessage(msg domain.SignalingMessage)
	OnTransportError(err error)
	OnClosed()
}

// MediaEngine owns local capture, the peer connection and session-description
// negotiation. Exactly one peer connection exists per call; it is never
// recreated. All completion callbacks arrive asynchronously on the engine's
// own goroutines.
type MediaEngine interface {
	// StartCapture acquires the audio and video sources and attaches the
	// local render sink. Must precede CreatePeerConnection. A missing video
	// source is fatal to the call attempt.
	StartCapture() error
	// CreatePeerConnection builds the connection with the given servers,
	// registers local tracks and installs the observer callbacks.
	CreatePeerConnection(iceServers []domain.ICEServer) error
	// CreateOffer produces a local offer, applies it as the local description
	// and then emits it through the observer. Initiator only; a second call
	// per attempt is rejected.
	CreateOffer() error
	// HandleOffer applies a remote offer, then automatically produces,
	// applies and emits the answer. Non-initiator only.
	HandleOffer(sdp string) error
	// HandleAnswer applies the remote answer. Initiator only, once.
	HandleAnswer(sdp string) error
	// AddICECandidate applies one remote candidate, buffering it in receipt
	// order while no remote description exists.
	AddICECandidate(c domain.ICECandidate) error
	SetMicEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	SwitchCamera() error
	// Stats returns a point-in-time quality snapshot for diagnostics.
	Stats() domain.MediaStats
	// Dispose stops capture, releases tracks, then closes the peer
	// connection. Idempotent; callbacks landing afterwards are no-ops.
	Dispose()
}

// EngineObserver receives the engine's asynchronous callbacks.
type EngineObserver interface {
	OnLocalDescription(sdpType, sdp string)
	OnLocalCandidate(c domain.ICECandidate)
	OnConnStateChange(state domain.ConnState)
	OnEngineError(err error)
}

// SessionBootstrapper obtains or creates the call session before transport
// and engine can start. Failures are fatal to the attempt; no retries.
type SessionBootstrapper interface {
	Initiate(ctx context.Context, appointmentID domain.AppointmentID) (*domain.CallSession, error)
	Fetch(ctx context.Context, callID domain.CallID) (*domain.CallSession, error)
	FetchByAppointment(ctx context.Context, appointmentID domain.AppointmentID) (*domain.CallSession, error)
	End(ctx context.Context, callID domain.CallID, reason string) error
}

// StateSubscriber is notified of orchestrator state transitions. UI layers
// subscribe here and issue intents; they never touch transport or engine.
type StateSubscriber func(state domain.CallState, detail string)
