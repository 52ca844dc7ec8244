package domain

import "errors"

var (
	ErrCallNotFound        = errors.New("call session not found")
	ErrNoVideoSource       = errors.New("no video capture source available")
	ErrTransportClosed     = errors.New("signaling transport is not open")
	ErrAlreadyNegotiated   = errors.New("offer/answer cycle already completed for this attempt")
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrEngineDisposed      = errors.New("media engine already disposed")
	ErrCallTerminal        = errors.New("call attempt already ended")
	ErrNotJoinable         = errors.New("appointment is outside its joinable window")
	ErrTokenExpired        = errors.New("bearer token is expired")
)
