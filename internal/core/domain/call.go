package domain

import "time"

type CallID string

type AppointmentID string

type UserID string

type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

type CallStatus string

const (
	CallStatusCreated CallStatus = "created"
	CallStatusActive  CallStatus = "active"
	CallStatusEnded   CallStatus = "ended"
)

// Participant is one side of a consultation call.
type Participant struct {
	UserID    UserID
	Role      Role
	Initiator bool
}

// ICEServer describes one connectivity traversal server handed out by the
// backend with the call session.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// DefaultSTUNServer is used whenever the backend supplies no ICE servers.
func DefaultSTUNServer() ICEServer {
	return ICEServer{URLs: []string{"stun:stun.l.google.com:19302"}}
}

// CallSession is the client-side, read-only copy of a call issued by the
// backend. It lives only for the duration of one call attempt.
type CallSession struct {
	CallID        CallID
	AppointmentID AppointmentID
	Caller        Participant
	Callee        Participant
	ICEServers    []ICEServer
	Status        CallStatus
	CreatedAt     time.Time
}

// EffectiveICEServers returns the session's ICE servers. When the backend
// supplied none, the configured fallback wins, then the public STUN server.
func (c *CallSession) EffectiveICEServers(fallback []ICEServer) []ICEServer {
	if len(c.ICEServers) > 0 {
		return c.ICEServers
	}
	if len(fallback) > 0 {
		return fallback
	}
	return []ICEServer{DefaultSTUNServer()}
}
