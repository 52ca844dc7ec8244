package webrtc

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"telecare/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedDescription struct {
	SDPType string
	SDP     string
}

type captureObserver struct {
	mu           sync.Mutex
	descriptions []recordedDescription
	candidates   []domain.ICECandidate
	states       []domain.ConnState
	errs         []error
}

func (o *captureObserver) OnLocalDescription(sdpType, sdp string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.descriptions = append(o.descriptions, recordedDescription{SDPType: sdpType, SDP: sdp})
}

func (o *captureObserver) OnLocalCandidate(c domain.ICECandidate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.candidates = append(o.candidates, c)
}

func (o *captureObserver) OnConnStateChange(state domain.ConnState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *captureObserver) OnEngineError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func (o *captureObserver) lastDescription() (recordedDescription, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.descriptions) == 0 {
		return recordedDescription{}, false
	}
	return o.descriptions[len(o.descriptions)-1], true
}

func (o *captureObserver) drainCandidates() []domain.ICECandidate {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.candidates
	o.candidates = nil
	return out
}

type videolessDevice struct{}

func (videolessDevice) OpenAudio() (MediaSource, error) {
	return newSyntheticSource("audio", 160, 20*time.Millisecond), nil
}

func (videolessDevice) OpenVideo(int) (MediaSource, error) {
	return nil, fmt.Errorf("camera unavailable")
}

func (videolessDevice) VideoSourceCount() int { return 0 }

func testConfig() Config {
	return Config{Width: 320, Height: 240, FrameRate: 10}
}

func newTestEngine(t *testing.T, obs *captureObserver) *Engine {
	e := NewEngine(testConfig(), nil, obs, zap.NewNop())
	t.Cleanup(e.Dispose)
	return e
}

func TestEngine_StartCapture_NoVideoSourceIsFatal(t *testing.T) {
	e := NewEngine(testConfig(), videolessDevice{}, &captureObserver{}, zap.NewNop())
	defer e.Dispose()

	err := e.StartCapture()
	assert.ErrorIs(t, err, domain.ErrNoVideoSource)
}

func TestEngine_PeerConnectionRequiresCapture(t *testing.T) {
	e := newTestEngine(t, &captureObserver{})

	err := e.CreatePeerConnection(nil)
	assert.Error(t, err)
}

func TestEngine_CreateOffer_SecondCallRejected(t *testing.T) {
	obs := &captureObserver{}
	e := newTestEngine(t, obs)

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection([]domain.ICEServer{domain.DefaultSTUNServer()}))
	require.NoError(t, e.CreateOffer())

	desc, ok := obs.lastDescription()
	require.True(t, ok, "offer should be emitted through the observer")
	assert.Equal(t, "offer", desc.SDPType)
	assert.NotEmpty(t, desc.SDP)

	err := e.CreateOffer()
	assert.ErrorIs(t, err, domain.ErrAlreadyNegotiated)
}

func TestEngine_HandleOfferAfterCreateOfferRejected(t *testing.T) {
	obs := &captureObserver{}
	e := newTestEngine(t, obs)

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection(nil))
	require.NoError(t, e.CreateOffer())

	desc, _ := obs.lastDescription()
	err := e.HandleOffer(desc.SDP)
	assert.ErrorIs(t, err, domain.ErrAlreadyNegotiated)
}

func TestEngine_HandleAnswerWithoutOfferRejected(t *testing.T) {
	e := newTestEngine(t, &captureObserver{})

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection(nil))

	err := e.HandleAnswer("v=0\r\no=- 0 0\r\ns=-\r\nt=0 0\r\n")
	assert.Error(t, err)
}

func TestEngine_CandidatesBufferedBeforeRemoteDescription(t *testing.T) {
	e := newTestEngine(t, &captureObserver{})

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection(nil))

	cand := domain.ICECandidate{
		Candidate:     "candidate:1 1 udp 2130706431 127.0.0.1 54000 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}
	require.NoError(t, e.AddICECandidate(cand))
	require.NoError(t, e.AddICECandidate(cand))

	assert.Equal(t, 2, e.Stats().BufferedCandidates)
}

func TestEngine_BufferedCandidatesFlushedOnceInReceiptOrder(t *testing.T) {
	obsA := &captureObserver{}
	obsB := &captureObserver{}
	a := newTestEngine(t, obsA)
	b := newTestEngine(t, obsB)

	for _, e := range []*Engine{a, b} {
		require.NoError(t, e.StartCapture())
		require.NoError(t, e.CreatePeerConnection(nil))
	}

	require.NoError(t, a.CreateOffer())
	offer, ok := obsA.lastDescription()
	require.True(t, ok)
	require.NoError(t, b.HandleOffer(offer.SDP))
	answer, ok := obsB.lastDescription()
	require.True(t, ok)

	// Candidates arriving before the answer must be buffered, not applied.
	ports := []int{54001, 54002, 54003}
	for i, p := range ports {
		require.NoError(t, a.AddICECandidate(domain.ICECandidate{
			Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 127.0.0.1 %d typ host", i+1, p),
			SDPMid:        "0",
			SDPMLineIndex: 0,
		}))
	}
	require.Equal(t, 3, a.Stats().BufferedCandidates)
	require.Zero(t, a.Stats().RemoteCandidates)

	a.mu.Lock()
	buffered := append([]domain.ICECandidate(nil), a.pending...)
	a.mu.Unlock()
	require.Len(t, buffered, 3)
	for i, p := range ports {
		assert.Contains(t, buffered[i].Candidate, fmt.Sprintf(" %d typ", p),
			"buffer must keep receipt order")
	}

	require.NoError(t, a.HandleAnswer(answer.SDP))

	stats := a.Stats()
	assert.Zero(t, stats.BufferedCandidates, "flush must drain the buffer")
	assert.Equal(t, 3, stats.RemoteCandidates, "each buffered candidate applied exactly once")

	// Once the description is in place, candidates skip the buffer entirely.
	require.NoError(t, a.AddICECandidate(domain.ICECandidate{
		Candidate:     "candidate:4 1 udp 2130706431 127.0.0.1 54004 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	}))
	assert.Equal(t, 4, a.Stats().RemoteCandidates)
	assert.Zero(t, a.Stats().BufferedCandidates)
}

func TestEngine_DisposeIsIdempotent(t *testing.T) {
	e := NewEngine(testConfig(), nil, &captureObserver{}, zap.NewNop())

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection(nil))

	e.Dispose()
	e.Dispose()

	assert.ErrorIs(t, e.CreateOffer(), domain.ErrEngineDisposed)
	assert.ErrorIs(t, e.StartCapture(), domain.ErrEngineDisposed)
}

func TestEngine_TogglesReflectedInStatsWithoutRenegotiation(t *testing.T) {
	obs := &captureObserver{}
	e := newTestEngine(t, obs)

	require.NoError(t, e.StartCapture())
	require.NoError(t, e.CreatePeerConnection(nil))
	require.NoError(t, e.CreateOffer())
	before := len(obs.descriptions)

	e.SetMicEnabled(false)
	e.SetVideoEnabled(false)

	stats := e.Stats()
	assert.False(t, stats.MicEnabled)
	assert.False(t, stats.VideoEnabled)

	e.SetMicEnabled(true)
	assert.True(t, e.Stats().MicEnabled)

	obs.mu.Lock()
	after := len(obs.descriptions)
	obs.mu.Unlock()
	assert.Equal(t, before, after, "toggles must not trigger renegotiation")
}

func TestEngine_SwitchCamera(t *testing.T) {
	device := NewSyntheticDevice(320, 240, 10)
	e := NewEngine(testConfig(), device, &captureObserver{}, zap.NewNop())
	defer e.Dispose()

	require.NoError(t, e.StartCapture())
	assert.NoError(t, e.SwitchCamera())
	assert.NoError(t, e.SwitchCamera())
}

func TestEngine_SwitchCameraWithoutAlternate(t *testing.T) {
	device := NewSyntheticDevice(320, 240, 10)
	device.Cameras = 1
	e := NewEngine(testConfig(), device, &captureObserver{}, zap.NewNop())
	defer e.Dispose()

	require.NoError(t, e.StartCapture())
	assert.Error(t, e.SwitchCamera())
}

type recordingSink struct {
	mu     sync.Mutex
	local  int
	remote int
}

func (s *recordingSink) RenderLocal(string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local++
}

func (s *recordingSink) RenderRemote(string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote++
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local, s.remote
}

// TestEngine_LoopbackNegotiation runs a complete offer/answer/ICE exchange
// between two engines in-process and waits for connectivity over host
// candidates.
func TestEngine_LoopbackNegotiation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback connectivity test in short mode")
	}

	obsA := &captureObserver{}
	obsB := &captureObserver{}
	a := newTestEngine(t, obsA)
	b := newTestEngine(t, obsB)

	sink := &recordingSink{}
	b.SetRenderSink(sink)

	for _, e := range []*Engine{a, b} {
		require.NoError(t, e.StartCapture())
		require.NoError(t, e.CreatePeerConnection(nil))
	}

	require.NoError(t, a.CreateOffer())
	offer, ok := obsA.lastDescription()
	require.True(t, ok)
	require.Equal(t, "offer", offer.SDPType)

	require.NoError(t, b.HandleOffer(offer.SDP))
	answer, ok := obsB.lastDescription()
	require.True(t, ok)
	require.Equal(t, "answer", answer.SDPType)

	require.NoError(t, a.HandleAnswer(answer.SDP))

	// Trickle candidates both ways until connected.
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range obsA.drainCandidates() {
			_ = b.AddICECandidate(c)
		}
		for _, c := range obsB.drainCandidates() {
			_ = a.AddICECandidate(c)
		}
		if a.Stats().ConnState == domain.ConnStateConnected &&
			b.Stats().ConnState == domain.ConnStateConnected {
			assert.Eventually(t, func() bool {
				local, remote := sink.counts()
				return local > 0 && remote > 0
			}, 10*time.Second, 100*time.Millisecond, "sink never saw media")
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("engines never connected: a=%s b=%s",
		a.Stats().ConnState, b.Stats().ConnState)
}
