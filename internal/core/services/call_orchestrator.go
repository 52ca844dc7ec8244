package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	callerrors "telecare/pkg/errors"
	applog "telecare/pkg/logger"
	"telecare/pkg/tracing"

	"go.uber.org/zap"
)

// TransportFactory builds the signaling channel for one bootstrapped call.
type TransportFactory func(session *domain.CallSession, userID domain.UserID, listener ports.TransportListener) ports.SignalingTransport

// EngineFactory builds the media engine for one call attempt.
type EngineFactory func(observer ports.EngineObserver) ports.MediaEngine

// CallMetrics is implemented by the monitoring layer. All methods must be
// cheap; they are called from the event loop.
type CallMetrics interface {
	StateTransition(from, to domain.CallState)
	SignalingMessage(direction, messageType string)
	CallFinished(outcome domain.CallOutcome, duration time.Duration)
}

// StartParams selects how the call session is obtained and who we are in it.
type StartParams struct {
	AppointmentID domain.AppointmentID
	CallID        domain.CallID
	UserID        domain.UserID
	// Initiate creates a fresh session for the appointment instead of
	// joining an existing one.
	Initiate bool
	// FallbackICEServers are used when the session carries none, ahead of
	// the built-in public STUN default.
	FallbackICEServers []domain.ICEServer
}

// CallOrchestrator binds the signaling transport to the media engine for one
// call attempt. Signaling frames, engine callbacks and local intents all
// arrive as events on one channel and are handled by a single goroutine, so
// no session state is ever mutated concurrently.
type CallOrchestrator struct {
	bootstrapper ports.SessionBootstrapper
	newTransport TransportFactory
	newEngine    EngineFactory
	journal      *JournalService
	metrics      CallMetrics
	logger       *zap.SugaredLogger

	events chan domain.CallEvent
	done   chan struct{}

	// Written only by the event loop goroutine (and once during Start
	// before the loop runs).
	params         StartParams
	session        *domain.CallSession
	transport      ports.SignalingTransport
	engine         ports.MediaEngine
	initiator      bool
	offerTriggered bool
	signalsStopped bool
	startedAt      time.Time

	state       chan domain.CallState // 1-slot mailbox holding current state
	subscribers []ports.StateSubscriber
}

func NewCallOrchestrator(
	bootstrapper ports.SessionBootstrapper,
	newTransport TransportFactory,
	newEngine EngineFactory,
	journal *JournalService,
	metrics CallMetrics,
	logger *zap.Logger,
) *CallOrchestrator {
	o := &CallOrchestrator{
		bootstrapper: bootstrapper,
		newTransport: newTransport,
		newEngine:    newEngine,
		journal:      journal,
		metrics:      metrics,
		logger:       logger.Sugar(),
		events:       make(chan domain.CallEvent, 256),
		done:         make(chan struct{}),
		state:        make(chan domain.CallState, 1),
	}
	o.state <- domain.StateIdle
	return o
}

// Subscribe registers a state listener. Must be called before Start;
// notifications come from the event loop goroutine.
func (o *CallOrchestrator) Subscribe(fn ports.StateSubscriber) {
	o.subscribers = append(o.subscribers, fn)
}

// State returns the current call state.
func (o *CallOrchestrator) State() domain.CallState {
	s := <-o.state
	o.state <- s
	return s
}

func (o *CallOrchestrator) setState(next domain.CallState, detail string) {
	prev := <-o.state
	if prev.Terminal() {
		// Ended and Failed are never left within one attempt
		o.state <- prev
		return
	}
	o.state <- next

	if prev == next {
		return
	}
	o.logger.Infow("call state changed", "from", prev, "to", next, "detail", detail)
	if o.metrics != nil {
		o.metrics.StateTransition(prev, next)
	}
	for _, fn := range o.subscribers {
		fn(next, detail)
	}
}

// Done is closed when the attempt reaches a terminal state and all resources
// are released.
func (o *CallOrchestrator) Done() <-chan struct{} {
	return o.done
}

// Start runs the attempt: bootstrap, capture, peer connection, signaling,
// then the event loop. It returns once the attempt has fully finished or the
// context is cancelled.
func (o *CallOrchestrator) Start(ctx context.Context, params StartParams) error {
	if o.State() != domain.StateIdle {
		return domain.ErrCallTerminal
	}
	o.params = params
	o.startedAt = time.Now()

	ctx, span := tracing.StartSpan(ctx, "call_attempt")
	defer span.End()

	o.setState(domain.StateBootstrapping, "obtaining call session")

	session, err := o.bootstrap(ctx, params)
	if err != nil {
		o.failBeforeMedia(ctx, err)
		return err
	}
	o.session = session
	ctx = applog.WithCallID(ctx, string(session.CallID))
	ctx = applog.WithUserID(ctx, string(params.UserID))
	o.initiator = params.Initiate || session.Caller.UserID == params.UserID
	o.logger.Infow("call session obtained",
		"call_id", session.CallID,
		"appointment_id", session.AppointmentID,
		"initiator", o.initiator,
	)

	o.engine = o.newEngine(engineObserver{o})
	if err := o.engine.StartCapture(); err != nil {
		err = callerrors.NewCaptureError(err)
		o.fail(ctx, err)
		return err
	}
	if err := o.engine.CreatePeerConnection(session.EffectiveICEServers(params.FallbackICEServers)); err != nil {
		err = callerrors.NewNegotiationError(err)
		o.fail(ctx, err)
		return err
	}

	o.transport = o.newTransport(session, params.UserID, transportListener{o})
	if err := o.transport.Connect(ctx); err != nil {
		err = callerrors.Wrap(err, callerrors.ErrCodeTransportFailed, "signaling connect failed", true)
		o.fail(ctx, err)
		return err
	}

	o.loop(ctx)
	return nil
}

func (o *CallOrchestrator) bootstrap(ctx context.Context, params StartParams) (*domain.CallSession, error) {
	switch {
	case params.Initiate:
		return o.bootstrapper.Initiate(ctx, params.AppointmentID)
	case params.CallID != "":
		return o.bootstrapper.Fetch(ctx, params.CallID)
	default:
		return o.bootstrapper.FetchByAppointment(ctx, params.AppointmentID)
	}
}

// Hangup posts the local end-call intent.
func (o *CallOrchestrator) Hangup() { o.post(domain.HangupRequested{}) }

// SetMicEnabled posts a mute/unmute intent.
func (o *CallOrchestrator) SetMicEnabled(enabled bool) { o.post(domain.MicToggled{Enabled: enabled}) }

// SetVideoEnabled posts a camera on/off intent.
func (o *CallOrchestrator) SetVideoEnabled(enabled bool) {
	o.post(domain.VideoToggled{Enabled: enabled})
}

// SwitchCamera posts a camera swap intent.
func (o *CallOrchestrator) SwitchCamera() { o.post(domain.CameraSwitchRequested{}) }

// MediaStats returns the engine's live quality snapshot.
func (o *CallOrchestrator) MediaStats() domain.MediaStats {
	if o.engine == nil {
		return domain.MediaStats{ConnState: domain.ConnStateNew}
	}
	return o.engine.Stats()
}

func (o *CallOrchestrator) post(ev domain.CallEvent) {
	select {
	case o.events <- ev:
	case <-o.done:
	default:
		o.logger.Warnw("event queue full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}

func (o *CallOrchestrator) loop(ctx context.Context) {
	for {
		select {
		case ev := <-o.events:
			o.handle(ctx, ev)
			if o.State().Terminal() {
				return
			}
		case <-ctx.Done():
			o.logger.Infow("call context cancelled")
			o.end(ctx, domain.OutcomeAborted, "context cancelled")
			return
		}
	}
}

func (o *CallOrchestrator) handle(ctx context.Context, ev domain.CallEvent) {
	switch e := ev.(type) {
	case domain.TransportOpened:
		if err := o.transport.Send(domain.Ready{}); err != nil {
			o.fail(ctx, callerrors.Wrap(err, callerrors.ErrCodeTransportFailed, "could not announce readiness", true))
			return
		}
		o.countSignal("out", domain.MessageTypeReady)
		o.setState(domain.StateAwaitingPeer, "waiting for peer to join")

	case domain.SignalReceived:
		o.handleSignal(ctx, e.Message)

	case domain.LocalDescription:
		o.sendLocalDescription(ctx, e)

	case domain.LocalCandidate:
		msg := domain.ICECandidate{
			Candidate:     e.Candidate,
			SDPMid:        e.SDPMid,
			SDPMLineIndex: e.SDPMLineIndex,
		}
		if err := o.transport.Send(msg); err != nil {
			o.logger.Warnw("failed to send local candidate", "error", err)
			return
		}
		o.countSignal("out", domain.MessageTypeICECandidate)

	case domain.ConnStateChanged:
		o.handleConnState(ctx, e.State)

	case domain.EngineFailed:
		o.fail(ctx, callerrors.NewNegotiationError(e.Err))

	case domain.TransportFailed:
		// Unparseable frames are dropped; anything else on the channel is
		// terminal because signaling cannot progress without it.
		if callerrors.CodeOf(e.Err) == callerrors.ErrCodeProtocolError {
			o.logger.Warnw("dropping unparseable signaling frame", "error", e.Err)
			return
		}
		o.fail(ctx, callerrors.Wrap(e.Err, callerrors.ErrCodeTransportFailed, "signaling channel failed", true))

	case domain.HangupRequested:
		if err := o.transport.Send(domain.Hangup{UserID: o.params.UserID}); err != nil {
			o.logger.Debugw("hangup notify failed", "error", err)
		} else {
			o.countSignal("out", domain.MessageTypeHangup)
		}
		o.end(ctx, o.hangupOutcome(), "local hangup")

	case domain.MicToggled:
		o.engine.SetMicEnabled(e.Enabled)

	case domain.VideoToggled:
		o.engine.SetVideoEnabled(e.Enabled)

	case domain.CameraSwitchRequested:
		if err := o.engine.SwitchCamera(); err != nil {
			o.logger.Warnw("camera switch failed", "error", err)
		}
	}
}

func (o *CallOrchestrator) handleSignal(ctx context.Context, msg domain.SignalingMessage) {
	if o.signalsStopped {
		return
	}
	o.countSignal("in", msg.MessageType())

	_, span := tracing.TraceSignalingMessage(ctx, msg.MessageType(), string(o.session.CallID))
	defer span.End()

	switch m := msg.(type) {
	case domain.Connected:
		o.logger.Infow("signaling acknowledged", "call_id", m.CallID)

	case domain.UserJoined:
		o.logger.Infow("peer joined", "user_id", m.UserID, "participants", m.ParticipantCount)
		if m.ParticipantCount >= 2 {
			o.triggerOffer(ctx)
		}

	case domain.Ready:
		o.triggerOffer(ctx)

	case domain.Offer:
		if o.initiator {
			o.logger.Warnw("initiator received an offer, dropping")
			return
		}
		if err := o.engine.HandleOffer(m.SDP); err != nil {
			if errors.Is(err, domain.ErrAlreadyNegotiated) {
				o.logger.Warnw("duplicate offer dropped", "call_id", o.session.CallID)
				return
			}
			o.fail(ctx, callerrors.NewNegotiationError(err))
			return
		}
		o.setState(domain.StateNegotiating, "remote offer received")

	case domain.Answer:
		if err := o.engine.HandleAnswer(m.SDP); err != nil {
			if errors.Is(err, domain.ErrAlreadyNegotiated) {
				o.logger.Warnw("duplicate answer dropped", "call_id", o.session.CallID)
				return
			}
			o.fail(ctx, callerrors.NewNegotiationError(err))
		}

	case domain.ICECandidate:
		if err := o.engine.AddICECandidate(m); err != nil {
			o.logger.Warnw("failed to apply remote candidate", "error", err)
		}

	case domain.PeerDisconnected:
		o.end(ctx, o.hangupOutcome(), fmt.Sprintf("peer %s disconnected", m.UserID))

	case domain.Hangup:
		o.end(ctx, o.hangupOutcome(), "remote hangup")

	case domain.SignalError:
		o.logger.Warnw("signaling server error", "message", m.Message)

	case domain.Unknown:
		o.logger.Infow("ignoring unknown signaling frame", "type", m.Type)
	}
}

// triggerOffer starts the offer/answer cycle. Only the initiator offers, and
// only once per attempt regardless of how many readiness signals arrive.
func (o *CallOrchestrator) triggerOffer(ctx context.Context) {
	if !o.initiator || o.offerTriggered {
		return
	}
	o.offerTriggered = true
	o.setState(domain.StateNegotiating, "creating offer")

	_, span := tracing.TraceNegotiation(ctx, "create_offer", string(o.session.CallID))
	defer span.End()

	if err := o.engine.CreateOffer(); err != nil {
		o.fail(ctx, callerrors.NewNegotiationError(err))
	}
}

// sendLocalDescription forwards an already-applied local description to the
// peer. The engine only emits descriptions after applying them locally.
func (o *CallOrchestrator) sendLocalDescription(ctx context.Context, d domain.LocalDescription) {
	var msg domain.SignalingMessage
	var msgType string
	switch d.Type {
	case "offer":
		msg = domain.Offer{SDP: d.SDP}
		msgType = domain.MessageTypeOffer
	case "answer":
		msg = domain.Answer{SDP: d.SDP}
		msgType = domain.MessageTypeAnswer
	default:
		o.logger.Warnw("unknown local description type", "type", d.Type)
		return
	}

	if err := o.transport.Send(msg); err != nil {
		o.fail(ctx, callerrors.Wrap(err, callerrors.ErrCodeTransportFailed, "could not transmit "+d.Type, true))
		return
	}
	o.countSignal("out", msgType)
}

func (o *CallOrchestrator) handleConnState(ctx context.Context, state domain.ConnState) {
	switch state {
	case domain.ConnStateConnected:
		o.setState(domain.StateConnected, "media flowing")
	case domain.ConnStateFailed:
		o.fail(ctx, callerrors.NewConnectivityError(string(state)))
	case domain.ConnStateDisconnected:
		// No in-place repair; a dropped connection ends the attempt.
		o.end(ctx, domain.OutcomeFailed, "connectivity lost")
	}
}

func (o *CallOrchestrator) hangupOutcome() domain.CallOutcome {
	if o.State() == domain.StateConnected {
		return domain.OutcomeCompleted
	}
	return domain.OutcomeAborted
}

// failBeforeMedia handles bootstrap errors, before any media resource
// exists.
func (o *CallOrchestrator) failBeforeMedia(ctx context.Context, err error) {
	o.logger.Errorw("bootstrap failed", "error", err)
	o.finish(ctx, domain.StateFailed, domain.OutcomeFailed, err.Error())
}

func (o *CallOrchestrator) fail(ctx context.Context, err error) {
	o.logger.Errorw("call attempt failed", "error", err)
	o.finish(ctx, domain.StateFailed, domain.OutcomeFailed, err.Error())
}

func (o *CallOrchestrator) end(ctx context.Context, outcome domain.CallOutcome, reason string) {
	o.finish(ctx, domain.StateEnded, outcome, reason)
}

// finish performs the one and only teardown path: stop inbound signaling,
// dispose the engine, close the transport, then record the attempt. Safe to
// reach from any state; a second invocation is a no-op.
func (o *CallOrchestrator) finish(ctx context.Context, terminal domain.CallState, outcome domain.CallOutcome, reason string) {
	if o.State().Terminal() {
		return
	}
	o.signalsStopped = true
	o.setState(terminal, reason)

	if o.engine != nil {
		o.engine.Dispose()
	}
	if o.transport != nil {
		if err := o.transport.Close(); err != nil {
			o.logger.Debugw("transport close failed", "error", err)
		}
	}

	duration := time.Since(o.startedAt)
	if o.metrics != nil {
		o.metrics.CallFinished(outcome, duration)
	}

	if o.session != nil {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.bootstrapper.End(endCtx, o.session.CallID, reason); err != nil {
			o.logger.Warnw("failed to report call end", "error", err)
		}
		o.recordAttempt(endCtx, outcome, reason)
	}

	o.logger.Infow("call attempt finished",
		"outcome", outcome,
		"reason", reason,
		"duration", duration,
	)
	close(o.done)
}

func (o *CallOrchestrator) recordAttempt(ctx context.Context, outcome domain.CallOutcome, reason string) {
	if o.journal == nil {
		return
	}

	role := domain.RolePatient
	if o.session.Caller.UserID == o.params.UserID {
		role = o.session.Caller.Role
	} else if o.session.Callee.UserID == o.params.UserID {
		role = o.session.Callee.Role
	}

	record := &domain.CallRecord{
		CallID:        o.session.CallID,
		AppointmentID: o.session.AppointmentID,
		UserID:        o.params.UserID,
		Role:          role,
		Initiator:     o.initiator,
		StartedAt:     o.startedAt,
		EndedAt:       time.Now(),
		Outcome:       outcome,
	}
	if outcome == domain.OutcomeFailed {
		record.FailureReason = reason
	}

	if err := o.journal.Record(ctx, record); err != nil {
		o.logger.Warnw("failed to journal call attempt", "error", err)
	}
}

func (o *CallOrchestrator) countSignal(direction, messageType string) {
	if o.metrics != nil {
		o.metrics.SignalingMessage(direction, messageType)
	}
}

// transportListener adapts transport callbacks into events.
type transportListener struct{ o *CallOrchestrator }

func (l transportListener) OnOpened() { l.o.post(domain.TransportOpened{}) }
func (l transportListener) OnMessage(msg domain.SignalingMessage) {
	l.o.post(domain.SignalReceived{Message: msg})
}
func (l transportListener) OnTransportError(err error) {
	l.o.post(domain.TransportFailed{Err: err})
}
func (l transportListener) OnClosed() {}

// engineObserver adapts engine callbacks into events.
type engineObserver struct{ o *CallOrchestrator }

func (e engineObserver) OnLocalDescription(sdpType, sdp string) {
	e.o.post(domain.LocalDescription{Type: sdpType, SDP: sdp})
}

func (e engineObserver) OnLocalCandidate(c domain.ICECandidate) {
	e.o.post(domain.LocalCandidate{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (e engineObserver) OnConnStateChange(state domain.ConnState) {
	e.o.post(domain.ConnStateChanged{State: state})
}

func (e engineObserver) OnEngineError(err error) {
	e.o.post(domain.EngineFailed{Err: err})
}
