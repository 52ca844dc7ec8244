package domain

import "time"

// MediaStats is a point-in-time quality snapshot of the media session,
// surfaced by the diagnostics API.
type MediaStats struct {
	ConnState          ConnState     `json:"conn_state"`
	LocalCandidates    int           `json:"local_candidates"`
	RemoteCandidates   int           `json:"remote_candidates"`
	BufferedCandidates int           `json:"buffered_candidates"`
	RemoteTracks       int           `json:"remote_tracks"`
	PacketsReceived    uint64        `json:"packets_received"`
	BytesReceived      uint64        `json:"bytes_received"`
	MicEnabled         bool          `json:"mic_enabled"`
	VideoEnabled       bool          `json:"video_enabled"`
	SessionUptime      time.Duration `json:"session_uptime"`
}
