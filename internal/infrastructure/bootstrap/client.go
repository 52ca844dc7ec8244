package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/circuitbreaker"
	callerrors "telecare/pkg/errors"
	"telecare/pkg/tracing"
	"telecare/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Client is the SessionBootstrapper against the call-session REST API. All
// failures are fatal to the call attempt; the circuit breaker makes repeated
// taps against a dead backend fail fast instead of each one timing out.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.SessionBootstrapper = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if err := validation.ValidateAPIURL(baseURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger.Sugar(),
	}, nil
}

// callSessionResponse is the backend's session payload. iceServers arrives
// as a JSON document embedded in a string.
type callSessionResponse struct {
	CallID        string `json:"callId"`
	AppointmentID string `json:"appointmentId"`
	DoctorID      string `json:"doctorId"`
	DoctorEmail   string `json:"doctorEmail"`
	PatientID     string `json:"patientId"`
	PatientEmail  string `json:"patientEmail"`
	CallType      string `json:"callType"`
	Status        string `json:"status"`
	InitiatorRole string `json:"initiatorRole"`
	ICEServers    string `json:"iceServers"`
	CreatedAt     string `json:"createdAt"`
}

func (r *callSessionResponse) toDomain(logger *zap.SugaredLogger) *domain.CallSession {
	doctor := domain.Participant{UserID: domain.UserID(r.DoctorEmail), Role: domain.RoleDoctor}
	patient := domain.Participant{UserID: domain.UserID(r.PatientEmail), Role: domain.RolePatient}

	session := &domain.CallSession{
		CallID:        domain.CallID(r.CallID),
		AppointmentID: domain.AppointmentID(r.AppointmentID),
		Status:        mapStatus(r.Status),
		ICEServers:    parseICEServers(r.ICEServers, logger),
	}

	if strings.EqualFold(r.InitiatorRole, string(domain.RolePatient)) {
		patient.Initiator = true
		session.Caller = patient
		session.Callee = doctor
	} else {
		doctor.Initiator = true
		session.Caller = doctor
		session.Callee = patient
	}

	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		session.CreatedAt = t
	}

	return session
}

func mapStatus(s string) domain.CallStatus {
	switch strings.ToUpper(s) {
	case "ACTIVE", "IN_PROGRESS":
		return domain.CallStatusActive
	case "ENDED", "COMPLETED":
		return domain.CallStatusEnded
	default:
		return domain.CallStatusCreated
	}
}

// parseICEServers decodes the embedded ICE server document. Anything
// malformed is logged and dropped; an empty result falls back to the public
// STUN server at use time.
func parseICEServers(raw string, logger *zap.SugaredLogger) []domain.ICEServer {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	var entries []struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warnw("discarding malformed iceServers payload", "error", err)
		return nil
	}

	var out []domain.ICEServer
	for _, e := range entries {
		server := domain.ICEServer{Username: e.Username, Credential: e.Credential}

		// urls may be a single string or a list of strings
		var one string
		var many []string
		if err := json.Unmarshal(e.URLs, &one); err == nil {
			server.URLs = []string{one}
		} else if err := json.Unmarshal(e.URLs, &many); err == nil {
			server.URLs = many
		} else {
			logger.Warnw("discarding ICE server with unreadable urls")
			continue
		}

		if len(server.URLs) > 0 {
			out = append(out, server)
		}
	}
	return out
}

// Initiate creates a fresh call session for the appointment.
func (c *Client) Initiate(ctx context.Context, appointmentID domain.AppointmentID) (*domain.CallSession, error) {
	ctx, span := tracing.TraceBootstrap(ctx, "initiate", string(appointmentID))
	defer span.End()

	body := map[string]string{"appointmentId": string(appointmentID)}
	var resp callSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/webrtc/initiate", body, &resp); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return resp.toDomain(c.logger), nil
}

// Fetch loads a known call session by ID.
func (c *Client) Fetch(ctx context.Context, callID domain.CallID) (*domain.CallSession, error) {
	ctx, span := tracing.TraceBootstrap(ctx, "fetch", "")
	defer span.End()

	if err := validation.ValidateCallID(string(callID)); err != nil {
		return nil, err
	}

	var resp callSessionResponse
	path := fmt.Sprintf("/api/webrtc/calls/%s", callID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return resp.toDomain(c.logger), nil
}

// FetchByAppointment loads the ongoing session for an appointment so a
// second participant can join it.
func (c *Client) FetchByAppointment(ctx context.Context, appointmentID domain.AppointmentID) (*domain.CallSession, error) {
	ctx, span := tracing.TraceBootstrap(ctx, "fetch_by_appointment", string(appointmentID))
	defer span.End()

	var resp callSessionResponse
	path := fmt.Sprintf("/api/webrtc/calls/appointment/%s", appointmentID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return resp.toDomain(c.logger), nil
}

// End reports the call as finished. Best effort; the server also times
// sessions out on its own.
func (c *Client) End(ctx context.Context, callID domain.CallID, reason string) error {
	ctx, span := tracing.TraceBootstrap(ctx, "end", "")
	defer span.End()

	body := map[string]string{"reason": reason}
	path := fmt.Sprintf("/api/webrtc/calls/%s/end", callID)
	if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.checkTokenExpiry(); err != nil {
		return err
	}

	return c.breaker.Execute(ctx, func() error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return callerrors.Wrap(err, callerrors.ErrCodeBootstrapFailed, "call session request failed", true)
		}
		defer resp.Body.Close()

		c.logger.Infow("call session request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration", time.Since(start),
		)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return domain.ErrCallNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return callerrors.NewUnauthorizedError(fmt.Sprintf("backend rejected the token (status %d)", resp.StatusCode))
		case resp.StatusCode >= 400:
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return callerrors.New(callerrors.ErrCodeBootstrapFailed,
				fmt.Sprintf("call session request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), true)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return callerrors.Wrap(err, callerrors.ErrCodeBootstrapFailed, "malformed call session payload", true)
		}
		return nil
	})
}

// checkTokenExpiry rejects a clearly expired bearer token before any
// request goes out. Opaque tokens pass through to the backend untouched.
func (c *Client) checkTokenExpiry() error {
	if c.token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if time.Now().After(exp.Time) {
		return fmt.Errorf("%w (expired %s ago)", domain.ErrTokenExpired, time.Since(exp.Time).Round(time.Second))
	}
	return nil
}
