package domain

import (
	"encoding/json"
	"fmt"
)

// Wire message type discriminators.
const (
	MessageTypeReady            = "READY"
	MessageTypeOffer            = "OFFER"
	MessageTypeAnswer           = "ANSWER"
	MessageTypeICECandidate     = "ICE_CANDIDATE"
	MessageTypeUserJoined       = "USER_JOINED"
	MessageTypePeerDisconnected = "PEER_DISCONNECTED"
	MessageTypeHangup           = "HANGUP"
	MessageTypeConnected        = "CONNECTED"
	MessageTypeError            = "ERROR"
)

// SignalingMessage is the closed union of everything that travels over the
// signaling channel. Each frame decodes into exactly one variant; frames with
// an unrecognized type decode into Unknown so the caller can log and drop
// them without string dispatch.
type SignalingMessage interface {
	MessageType() string
}

type Ready struct {
	UserID UserID
}

type Offer struct {
	SDP        string
	FromUserID UserID
}

type Answer struct {
	SDP        string
	FromUserID UserID
}

type ICECandidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
	FromUserID    UserID
}

type UserJoined struct {
	UserID           UserID
	ParticipantCount int
}

type PeerDisconnected struct {
	UserID UserID
}

type Hangup struct {
	UserID UserID
}

// Connected is the server's acknowledgement of a fresh signaling connection.
type Connected struct {
	CallID CallID
	UserID UserID
}

type SignalError struct {
	Message string
}

// Unknown carries a frame whose type the client does not understand. It is
// logged and ignored, never fatal.
type Unknown struct {
	Type string
}

func (Ready) MessageType() string            { return MessageTypeReady }
func (Offer) MessageType() string            { return MessageTypeOffer }
func (Answer) MessageType() string           { return MessageTypeAnswer }
func (ICECandidate) MessageType() string     { return MessageTypeICECandidate }
func (UserJoined) MessageType() string       { return MessageTypeUserJoined }
func (PeerDisconnected) MessageType() string { return MessageTypePeerDisconnected }
func (Hangup) MessageType() string           { return MessageTypeHangup }
func (Connected) MessageType() string        { return MessageTypeConnected }
func (SignalError) MessageType() string      { return MessageTypeError }
func (u Unknown) MessageType() string        { return u.Type }

// wireFrame is the flat JSON shape shared by all signaling frames.
type wireFrame struct {
	Type             string `json:"type"`
	SDP              string `json:"sdp,omitempty"`
	Candidate        string `json:"candidate,omitempty"`
	SDPMid           string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *int   `json:"sdpMLineIndex,omitempty"`
	UserID           string `json:"userId,omitempty"`
	FromUserID       string `json:"fromUserId,omitempty"`
	ParticipantCount int    `json:"participantCount,omitempty"`
	CallID           string `json:"callId,omitempty"`
	Message          string `json:"message,omitempty"`
}

// DecodeSignalingMessage parses one inbound frame into its typed variant.
// A JSON error is returned to the caller; an unrecognized type is not an
// error and yields Unknown.
func DecodeSignalingMessage(data []byte) (SignalingMessage, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed signaling frame: %w", err)
	}

	switch f.Type {
	case MessageTypeReady:
		return Ready{UserID: UserID(f.UserID)}, nil
	case MessageTypeOffer:
		if f.SDP == "" {
			return nil, fmt.Errorf("offer frame without sdp")
		}
		return Offer{SDP: f.SDP, FromUserID: UserID(f.FromUserID)}, nil
	case MessageTypeAnswer:
		if f.SDP == "" {
			return nil, fmt.Errorf("answer frame without sdp")
		}
		return Answer{SDP: f.SDP, FromUserID: UserID(f.FromUserID)}, nil
	case MessageTypeICECandidate:
		if f.Candidate == "" {
			return nil, fmt.Errorf("ice candidate frame without candidate")
		}
		var mline int
		if f.SDPMLineIndex != nil {
			mline = *f.SDPMLineIndex
		}
		return ICECandidate{
			Candidate:     f.Candidate,
			SDPMid:        f.SDPMid,
			SDPMLineIndex: mline,
			FromUserID:    UserID(f.FromUserID),
		}, nil
	case MessageTypeUserJoined:
		count := f.ParticipantCount
		if count == 0 {
			count = 2
		}
		return UserJoined{UserID: UserID(f.UserID), ParticipantCount: count}, nil
	case MessageTypePeerDisconnected:
		return PeerDisconnected{UserID: UserID(f.UserID)}, nil
	case MessageTypeHangup:
		return Hangup{UserID: UserID(f.UserID)}, nil
	case MessageTypeConnected:
		return Connected{CallID: CallID(f.CallID), UserID: UserID(f.UserID)}, nil
	case MessageTypeError:
		return SignalError{Message: f.Message}, nil
	default:
		return Unknown{Type: f.Type}, nil
	}
}

// EncodeSignalingMessage serializes one outbound message to its wire frame.
func EncodeSignalingMessage(msg SignalingMessage) ([]byte, error) {
	var f wireFrame

	switch m := msg.(type) {
	case Ready:
		f = wireFrame{Type: MessageTypeReady}
	case Offer:
		f = wireFrame{Type: MessageTypeOffer, SDP: m.SDP}
	case Answer:
		f = wireFrame{Type: MessageTypeAnswer, SDP: m.SDP}
	case ICECandidate:
		mline := m.SDPMLineIndex
		f = wireFrame{
			Type:          MessageTypeICECandidate,
			Candidate:     m.Candidate,
			SDPMid:        m.SDPMid,
			SDPMLineIndex: &mline,
		}
	case Hangup:
		f = wireFrame{Type: MessageTypeHangup, UserID: string(m.UserID)}
	default:
		return nil, fmt.Errorf("message type %q is not sendable", msg.MessageType())
	}

	return json.Marshal(&f)
}
