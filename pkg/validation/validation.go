package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateSDP performs basic session-description sanity checks before a
// description is applied or transmitted.
func ValidateSDP(sdp string) error {
	if sdp == "" {
		return fmt.Errorf("SDP cannot be empty")
	}
	if len(sdp) < 2 || sdp[:2] != "v=" {
		return fmt.Errorf("invalid SDP format: must start with 'v='")
	}
	requiredFields := []string{"v=", "o=", "s=", "t="}
	for _, field := range requiredFields {
		if !strings.Contains(sdp, field) {
			return fmt.Errorf("invalid SDP format: missing required field '%s'", field)
		}
	}
	return nil
}

// ValidateCandidate checks one ICE candidate string.
func ValidateCandidate(candidate string) error {
	if candidate == "" {
		return fmt.Errorf("ICE candidate is required")
	}
	if !strings.HasPrefix(candidate, "candidate:") && !strings.Contains(candidate, " typ ") {
		return fmt.Errorf("invalid ICE candidate format")
	}
	return nil
}

// ValidateSignalingURL checks the websocket endpoint for the call channel.
func ValidateSignalingURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("signaling URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid signaling URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid signaling URL scheme (must be ws or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("signaling URL must have a host")
	}
	return nil
}

// ValidateAPIURL checks the bootstrap backend base URL.
func ValidateAPIURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("API URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid API URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("API URL must have a host")
	}
	return nil
}

// ValidateUserID checks the identity used to address the signaling channel.
// The backend issues email-shaped identities, but the transport only needs
// them non-empty and of sane length.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > 254 {
		return fmt.Errorf("user ID is too long (max 254 characters)")
	}
	return nil
}

// ValidateCallID checks the backend-issued call identifier.
func ValidateCallID(callID string) error {
	if callID == "" {
		return fmt.Errorf("call ID is required")
	}
	if len(callID) > 128 {
		return fmt.Errorf("call ID is too long (max 128 characters)")
	}
	return nil
}
