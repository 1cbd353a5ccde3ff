package capture

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/l508/internal/protocol"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestAttachAdminRoutes_Empty(t *testing.T) {
	s := openTestStore(t)
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/capture/summary", "/debug/capture/chart"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "no capture sessions", path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/capture/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestAttachAdminRoutes_WithSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartSession(ctx, "SIM", t0)
	require.NoError(t, err)
	for i, r := range []uint8{30, 20, 10} {
		_, err := s.Insert(ctx, Frame{SessionID: id, Received: t0.Add(time.Duration(i) * time.Second), Kind: protocol.FrameRadar, Data: approach(r)})
		require.NoError(t, err)
	}

	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/capture/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, id, sum.SessionID)
	assert.Equal(t, 3, sum.Range.Count)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/capture/chart?session="+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "approaching")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/capture/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, 3, sessions[0].Frames)
}

func TestAttachAdminRoutes_InvalidSession(t *testing.T) {
	s := openTestStore(t)
	mux := http.NewServeMux()
	s.AttachAdminRoutes(mux)

	for _, path := range []string{"/debug/capture/summary?session=latest", "/debug/capture/chart?session=1%27%20OR%201"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "invalid session", path)
	}
}
