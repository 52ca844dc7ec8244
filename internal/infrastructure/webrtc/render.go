package webrtc

// RenderSink receives decoded media payloads for display. The engine works
// without one; a desktop shell attaches its own before the call starts.
type RenderSink interface {
	// RenderLocal receives each local sample that is actually transmitted,
	// for self-view.
	RenderLocal(trackID string, payload []byte)
	// RenderRemote receives each inbound RTP payload.
	RenderRemote(trackID string, payload []byte)
}
