package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/validation"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config carries the static engine settings. ICE servers arrive per call
// with the session, not here.
type Config struct {
	Width     int
	Height    int
	FrameRate int

	PortRangeMin uint16
	PortRangeMax uint16
}

const pliInterval = 3 * time.Second

// Engine drives exactly one peer connection for one call attempt. It is
// never recreated; a failed attempt means a new Engine.
type Engine struct {
	cfg      Config
	device   CaptureDevice
	observer ports.EngineObserver
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	sink       RenderSink
	audioSrc   MediaSource
	videoSrc   MediaSource
	cameraIdx  int
	audioTrack *webrtc.TrackLocalStaticSample
	videoTrack *webrtc.TrackLocalStaticSample
	pc         *webrtc.PeerConnection

	captureStarted bool
	offerCreated   bool
	answerApplied  bool
	offerHandled   bool
	remoteDescSet  bool
	pending        []domain.ICECandidate
	disposed       bool
	startedAt      time.Time

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
	wg         sync.WaitGroup

	micEnabled   atomic.Bool
	videoEnabled atomic.Bool

	connState        atomic.Value // domain.ConnState
	localCandidates  atomic.Int64
	remoteCandidates atomic.Int64
	remoteTracks     atomic.Int64
	packetsReceived  atomic.Uint64
	bytesReceived    atomic.Uint64
}

var _ ports.MediaEngine = (*Engine)(nil)

func NewEngine(cfg Config, device CaptureDevice, observer ports.EngineObserver, logger *zap.Logger) *Engine {
	if device == nil {
		device = NewSyntheticDevice(cfg.Width, cfg.Height, cfg.FrameRate)
	}
	e := &Engine{
		cfg:      cfg,
		device:   device,
		observer: observer,
		logger:   logger.Sugar(),
	}
	e.micEnabled.Store(true)
	e.videoEnabled.Store(true)
	e.connState.Store(domain.ConnStateNew)
	e.pumpCtx, e.pumpCancel = context.WithCancel(context.Background())
	return e
}

// SetRenderSink attaches the display sink. Must be called before
// CreatePeerConnection to see every frame.
func (e *Engine) SetRenderSink(sink RenderSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

func (e *Engine) currentSink() RenderSink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink
}

// StartCapture acquires the local audio and video sources. A missing video
// source fails the whole attempt.
func (e *Engine) StartCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return domain.ErrEngineDisposed
	}
	if e.captureStarted {
		return nil
	}

	audioSrc, err := e.device.OpenAudio()
	if err != nil {
		return fmt.Errorf("audio capture failed: %w", err)
	}

	videoSrc, err := e.device.OpenVideo(0)
	if err != nil {
		audioSrc.Close()
		return fmt.Errorf("%w: %v", domain.ErrNoVideoSource, err)
	}

	e.audioSrc = audioSrc
	e.videoSrc = videoSrc
	e.cameraIdx = 0
	e.captureStarted = true
	e.startedAt = time.Now()

	e.logger.Infow("capture started", "audio", audioSrc.Label(), "video", videoSrc.Label())
	return nil
}

// CreatePeerConnection builds the connection, attaches the local tracks and
// installs the observer callbacks. Must follow StartCapture.
func (e *Engine) CreatePeerConnection(iceServers []domain.ICEServer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return domain.ErrEngineDisposed
	}
	if !e.captureStarted {
		return fmt.Errorf("capture must be started before the peer connection")
	}
	if e.pc != nil {
		return fmt.Errorf("peer connection already exists for this attempt")
	}

	settingEngine := webrtc.SettingEngine{}
	if e.cfg.PortRangeMin > 0 && e.cfg.PortRangeMax > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(e.cfg.PortRangeMin, e.cfg.PortRangeMax); err != nil {
			return fmt.Errorf("invalid udp port range: %w", err)
		}
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   toICEServers(iceServers),
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "telecare-audio",
	)
	if err != nil {
		pc.Close()
		return err
	}
	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "telecare-video",
	)
	if err != nil {
		pc.Close()
		return err
	}

	audioSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		return err
	}
	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		e.localCandidates.Add(1)
		j := c.ToJSON()
		cand := domain.ICECandidate{Candidate: j.Candidate}
		if j.SDPMid != nil {
			cand.SDPMid = *j.SDPMid
		}
		if j.SDPMLineIndex != nil {
			cand.SDPMLineIndex = int(*j.SDPMLineIndex)
		}
		e.observer.OnLocalCandidate(cand)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		mapped := mapConnState(state)
		e.connState.Store(mapped)
		e.logger.Infow("peer connection state changed", "state", state.String())
		e.observer.OnConnStateChange(mapped)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.remoteTracks.Add(1)
		e.logger.Infow("remote track started",
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		e.wg.Add(1)
		go e.consumeRemoteTrack(track)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			e.wg.Add(1)
			go e.requestKeyframes(pc, uint32(track.SSRC()))
		}
	})

	e.pc = pc
	e.audioTrack = audioTrack
	e.videoTrack = videoTrack

	e.wg.Add(4)
	go e.pumpTrack(audioTrack, e.currentAudioSource, &e.micEnabled)
	go e.pumpTrack(videoTrack, e.currentVideoSource, &e.videoEnabled)
	go e.drainSenderRTCP(audioSender, nil)
	go e.drainSenderRTCP(videoSender, e.currentVideoSource)

	return nil
}

// CreateOffer produces the local offer, applies it as local description and
// only then emits it. A second call for the same attempt is rejected.
func (e *Engine) CreateOffer() error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return domain.ErrEngineDisposed
	}
	pc := e.pc
	if pc == nil {
		e.mu.Unlock()
		return fmt.Errorf("peer connection not created")
	}
	if e.offerCreated || e.offerHandled {
		e.mu.Unlock()
		return domain.ErrAlreadyNegotiated
	}
	e.offerCreated = true
	e.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to apply local offer: %w", err)
	}

	e.observer.OnLocalDescription("offer", offer.SDP)
	return nil
}

// HandleOffer applies the remote offer and produces, applies and emits the
// answer in one step.
func (e *Engine) HandleOffer(sdp string) error {
	if err := validation.ValidateSDP(sdp); err != nil {
		return err
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return domain.ErrEngineDisposed
	}
	pc := e.pc
	if pc == nil {
		e.mu.Unlock()
		return fmt.Errorf("peer connection not created")
	}
	if e.offerCreated || e.offerHandled {
		e.mu.Unlock()
		return domain.ErrAlreadyNegotiated
	}
	e.offerHandled = true
	e.mu.Unlock()

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("failed to apply remote offer: %w", err)
	}
	e.flushPendingCandidates(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to apply local answer: %w", err)
	}

	e.observer.OnLocalDescription("answer", answer.SDP)
	return nil
}

// HandleAnswer applies the remote answer to a previously created offer.
func (e *Engine) HandleAnswer(sdp string) error {
	if err := validation.ValidateSDP(sdp); err != nil {
		return err
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return domain.ErrEngineDisposed
	}
	pc := e.pc
	if pc == nil {
		e.mu.Unlock()
		return fmt.Errorf("peer connection not created")
	}
	if !e.offerCreated {
		e.mu.Unlock()
		return fmt.Errorf("answer received without a local offer")
	}
	if e.answerApplied {
		e.mu.Unlock()
		return domain.ErrAlreadyNegotiated
	}
	e.answerApplied = true
	e.mu.Unlock()

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("failed to apply remote answer: %w", err)
	}
	e.flushPendingCandidates(pc)
	return nil
}

// AddICECandidate applies one remote candidate. While no remote description
// exists yet, candidates are buffered and replayed in receipt order.
func (e *Engine) AddICECandidate(c domain.ICECandidate) error {
	if err := validation.ValidateCandidate(c.Candidate); err != nil {
		return err
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return domain.ErrEngineDisposed
	}
	pc := e.pc
	if pc == nil || !e.remoteDescSet {
		e.pending = append(e.pending, c)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.remoteCandidates.Add(1)
	return pc.AddICECandidate(toICECandidateInit(c))
}

// flushPendingCandidates replays candidates buffered before the remote
// description arrived. Caller must not hold e.mu.
func (e *Engine) flushPendingCandidates(pc *webrtc.PeerConnection) {
	e.mu.Lock()
	e.remoteDescSet = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, c := range pending {
		e.remoteCandidates.Add(1)
		if err := pc.AddICECandidate(toICECandidateInit(c)); err != nil {
			e.logger.Warnw("failed to apply buffered candidate", "error", err)
		}
	}
}

func (e *Engine) SetMicEnabled(enabled bool) {
	e.micEnabled.Store(enabled)
	e.logger.Infow("microphone toggled", "enabled", enabled)
}

func (e *Engine) SetVideoEnabled(enabled bool) {
	e.videoEnabled.Store(enabled)
	e.logger.Infow("video toggled", "enabled", enabled)
}

// SwitchCamera swaps the video source for the next camera without touching
// the peer connection or renegotiating.
func (e *Engine) SwitchCamera() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return domain.ErrEngineDisposed
	}
	if !e.captureStarted {
		return fmt.Errorf("capture not started")
	}
	count := e.device.VideoSourceCount()
	if count < 2 {
		return fmt.Errorf("no alternate camera available")
	}

	next := (e.cameraIdx + 1) % count
	src, err := e.device.OpenVideo(next)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", next, err)
	}

	old := e.videoSrc
	e.videoSrc = src
	e.cameraIdx = next
	if old != nil {
		old.Close()
	}

	e.logger.Infow("camera switched", "camera", next, "source", src.Label())
	return nil
}

// Stats returns a point-in-time quality snapshot.
func (e *Engine) Stats() domain.MediaStats {
	e.mu.Lock()
	buffered := len(e.pending)
	startedAt := e.startedAt
	e.mu.Unlock()

	var uptime time.Duration
	if !startedAt.IsZero() {
		uptime = time.Since(startedAt)
	}

	return domain.MediaStats{
		ConnState:          e.connState.Load().(domain.ConnState),
		LocalCandidates:    int(e.localCandidates.Load()),
		RemoteCandidates:   int(e.remoteCandidates.Load()),
		BufferedCandidates: buffered,
		RemoteTracks:       int(e.remoteTracks.Load()),
		PacketsReceived:    e.packetsReceived.Load(),
		BytesReceived:      e.bytesReceived.Load(),
		MicEnabled:         e.micEnabled.Load(),
		VideoEnabled:       e.videoEnabled.Load(),
		SessionUptime:      uptime,
	}
}

// Dispose stops capture, releases tracks and closes the peer connection, in
// that order. Safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	audioSrc := e.audioSrc
	videoSrc := e.videoSrc
	pc := e.pc
	e.audioSrc = nil
	e.videoSrc = nil
	e.mu.Unlock()

	e.pumpCancel()

	if audioSrc != nil {
		audioSrc.Close()
	}
	if videoSrc != nil {
		videoSrc.Close()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			e.logger.Warnw("peer connection close failed", "error", err)
		}
	}

	e.wg.Wait()
	e.logger.Infow("media engine disposed")
}

func (e *Engine) currentAudioSource() MediaSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioSrc
}

func (e *Engine) currentVideoSource() MediaSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoSrc
}

// pumpTrack feeds samples from the current source into a local track. The
// source is re-resolved every frame so camera switches take effect without
// renegotiation; disabled tracks keep draining the source but write nothing.
func (e *Engine) pumpTrack(track *webrtc.TrackLocalStaticSample, source func() MediaSource, enabled *atomic.Bool) {
	defer e.wg.Done()

	for {
		select {
		case <-e.pumpCtx.Done():
			return
		default:
		}

		src := source()
		if src == nil {
			return
		}

		sample, err := src.NextSample()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Warnw("capture source failed", "source", src.Label(), "error", err)
				e.observer.OnEngineError(err)
			}
			return
		}

		if !enabled.Load() {
			continue
		}

		if err := track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			e.logger.Warnw("track write failed", "track", track.ID(), "error", err)
		}
		if sink := e.currentSink(); sink != nil {
			sink.RenderLocal(track.ID(), sample.Data)
		}
	}
}

// consumeRemoteTrack counts inbound media for the stats snapshot.
func (e *Engine) consumeRemoteTrack(track *webrtc.TrackRemote) {
	defer e.wg.Done()

	buf := make([]byte, 1500) // MTU size
	pkt := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		e.packetsReceived.Add(1)
		e.bytesReceived.Add(uint64(n))
		if sink := e.currentSink(); sink != nil {
			sink.RenderRemote(track.ID(), pkt.Payload)
		}
	}
}

// requestKeyframes periodically asks the remote peer for a fresh keyframe.
func (e *Engine) requestKeyframes(pc *webrtc.PeerConnection, ssrc uint32) {
	defer e.wg.Done()

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.pumpCtx.Done():
			return
		case <-ticker.C:
			pli := &rtcp.PictureLossIndication{MediaSSRC: ssrc}
			if err := pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
				return
			}
		}
	}
}

// drainSenderRTCP keeps the sender's RTCP path flowing and reacts to remote
// picture loss reports on the video sender.
func (e *Engine) drainSenderRTCP(sender *webrtc.RTPSender, videoSource func() MediaSource) {
	defer e.wg.Done()

	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		if videoSource == nil {
			continue
		}
		for _, packet := range packets {
			if _, ok := packet.(*rtcp.PictureLossIndication); ok {
				if src, ok := videoSource().(KeyframeForcer); ok {
					src.ForceKeyframe()
				}
			}
		}
	}
}

func mapConnState(s webrtc.PeerConnectionState) domain.ConnState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnStateNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnStateChecking
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnStateFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnStateClosed
	default:
		return domain.ConnStateNew
	}
}

func toICEServers(servers []domain.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}

func toICECandidateInit(c domain.ICECandidate) webrtc.ICECandidateInit {
	mid := c.SDPMid
	mline := uint16(c.SDPMLineIndex)
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &mline,
	}
}
