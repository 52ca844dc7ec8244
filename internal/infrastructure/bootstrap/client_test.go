package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"telecare/internal/core/domain"
	callerrors "telecare/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sessionPayload() map[string]interface{} {
	return map[string]interface{}{
		"callId":        "call-42",
		"appointmentId": "apt-9",
		"doctorId":      "d1",
		"doctorEmail":   "doctor@clinic.example",
		"patientId":     "p1",
		"patientEmail":  "patient@mail.example",
		"callType":      "VIDEO",
		"status":        "CREATED",
		"initiatorRole": "DOCTOR",
		"iceServers":    `[{"urls":"stun:stun.example.org:3478"},{"urls":["turn:turn.example.org:3478"],"username":"u","credential":"c"}]`,
		"createdAt":     "2026-08-30T10:00:00Z",
	}
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestBootstrapClient(t *testing.T, url, token string) *Client {
	c, err := NewClient(url, token, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return c
}

func signedToken(t *testing.T, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "doctor@clinic.example",
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestClient_InitiateParsesSession(t *testing.T) {
	var gotPath, gotAuth string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(sessionPayload())
	})

	c := newTestBootstrapClient(t, server.URL, "opaque-token")
	session, err := c.Initiate(context.Background(), "apt-9")
	require.NoError(t, err)

	assert.Equal(t, "/api/webrtc/initiate", gotPath)
	assert.Equal(t, "Bearer opaque-token", gotAuth)

	assert.Equal(t, domain.CallID("call-42"), session.CallID)
	assert.Equal(t, domain.AppointmentID("apt-9"), session.AppointmentID)
	assert.Equal(t, domain.RoleDoctor, session.Caller.Role)
	assert.True(t, session.Caller.Initiator)
	assert.Equal(t, domain.UserID("doctor@clinic.example"), session.Caller.UserID)
	assert.Equal(t, domain.UserID("patient@mail.example"), session.Callee.UserID)

	require.Len(t, session.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, session.ICEServers[0].URLs)
	assert.Equal(t, "u", session.ICEServers[1].Username)
}

func TestClient_PatientInitiatorMapping(t *testing.T) {
	payload := sessionPayload()
	payload["initiatorRole"] = "PATIENT"
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	session, err := c.Fetch(context.Background(), "call-42")
	require.NoError(t, err)

	assert.Equal(t, domain.RolePatient, session.Caller.Role)
	assert.True(t, session.Caller.Initiator)
	assert.Equal(t, domain.RoleDoctor, session.Callee.Role)
}

func TestClient_MissingICEServersFallsBackToSTUN(t *testing.T) {
	payload := sessionPayload()
	payload["iceServers"] = ""
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	session, err := c.FetchByAppointment(context.Background(), "apt-9")
	require.NoError(t, err)

	assert.Empty(t, session.ICEServers)
	effective := session.EffectiveICEServers(nil)
	require.Len(t, effective, 1)
	assert.Equal(t, domain.DefaultSTUNServer(), effective[0])
}

func TestClient_MalformedICEServersIsNotFatal(t *testing.T) {
	payload := sessionPayload()
	payload["iceServers"] = "{not json"
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	session, err := c.Fetch(context.Background(), "call-42")
	require.NoError(t, err)
	assert.Empty(t, session.ICEServers)
}

func TestClient_NotFound(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	_, err := c.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestClient_UnauthorizedIsFatal(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	_, err := c.Initiate(context.Background(), "apt-9")
	require.Error(t, err)
	assert.True(t, callerrors.IsFatal(err))
}

func TestClient_ExpiredTokenRejectedLocally(t *testing.T) {
	var hits atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	c := newTestBootstrapClient(t, server.URL, signedToken(t, time.Now().Add(-time.Hour)))
	_, err := c.Initiate(context.Background(), "apt-9")
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.Zero(t, hits.Load(), "expired token must not reach the backend")
}

func TestClient_ValidTokenPassesLocalCheck(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sessionPayload())
	})

	c := newTestBootstrapClient(t, server.URL, signedToken(t, time.Now().Add(time.Hour)))
	_, err := c.Initiate(context.Background(), "apt-9")
	assert.NoError(t, err)
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	for i := 0; i < 5; i++ {
		_, _ = c.Fetch(context.Background(), "call-42")
	}

	// Three failures trip the breaker; the last two calls never leave the
	// client.
	assert.Equal(t, int32(3), hits.Load())

	_, err := c.Fetch(context.Background(), "call-42")
	assert.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_EndSendsReason(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
	})

	c := newTestBootstrapClient(t, server.URL, "")
	require.NoError(t, c.End(context.Background(), "call-42", "completed"))

	assert.Equal(t, "/api/webrtc/calls/call-42/end", gotPath)
	assert.Equal(t, "completed", gotBody["reason"])
}

func TestClient_RejectsNonHTTPBaseURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", "", time.Second, zap.NewNop())
	assert.Error(t, err)
}
