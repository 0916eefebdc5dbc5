package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yooproctor/internal/cache"
	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/services"
	"github.com/yoockh/yooproctor/internal/utils"
)

func init() { gin.SetMode(gin.TestMode) }

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type fixture struct {
	interviews *fakeInterviews
	results    *fakeResults
	recordings *fakeRecordings
	cache      *cache.MemoryCache
	proctor    *ProctorHandler
	router     *gin.Engine
}

func interview(id, candidateID, status string) *models.Interview {
	return &models.Interview{
		ID:          id,
		CandidateID: candidateID,
		Title:       "Backend Engineer",
		Status:      status,
		Questions: []models.Question{
			{ID: "q1", InterviewID: id, Position: 1, Text: "Tell us about yourself."},
			{ID: "q2", InterviewID: id, Position: 2, Text: "Describe a hard bug.", Category: "technical"},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()
	f := &fixture{
		interviews: newFakeInterviews(
			interview("iv-1", "cand-1", services.InterviewScheduled),
			interview("iv-done", "cand-1", services.InterviewCompleted),
		),
		results: newFakeResults(&models.InterviewResult{
			InterviewID: "iv-done",
			CandidateID: "cand-1",
			Status:      services.InterviewCompleted,
			VideoURL:    "https://storage.example.com/recordings/iv-done/a.webm",
		}),
		recordings: &fakeRecordings{},
		cache:      cache.NewMemoryCache(),
	}

	ih := NewInterviewHandler(f.interviews, f.results, f.recordings, time.Minute)
	ph := NewProctorHandler(f.interviews, f.results, f.recordings, f.cache, nil, ProctorOptions{
		CommandTimeout: time.Second,
		MarkerTTL:      time.Hour,
	}, log)
	f.proctor = ph

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Candidate"); id != "" {
			c.Set("candidate_id", id)
			c.Set("role", c.GetHeader("X-Test-Role"))
		}
		c.Next()
	})
	r.GET("/interview/:interview_id", ih.Get)
	r.GET("/interview/:interview_id/result", ih.Result)
	r.GET("/results/me", ih.MyResults)
	r.GET("/review/interview/:interview_id/recording", ih.Recording)
	r.GET("/proctor/cancellation", ph.Cancellation)
	r.GET("/ws/proctor/:interview_id", ph.SessionWS)
	f.router = r
	return f
}

func (f *fixture) get(path, candidateID, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if candidateID != "" {
		req.Header.Set("X-Test-Candidate", candidateID)
		req.Header.Set("X-Test-Role", role)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestGetInterview(t *testing.T) {
	f := newFixture(t)

	w := f.get("/interview/iv-1", "cand-1", "candidate")
	require.Equal(t, http.StatusOK, w.Code)
	var resp InterviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "iv-1", resp.ID)
	require.Len(t, resp.Questions, 2)
	assert.Equal(t, "technical", resp.Questions[1].Category)

	w = f.get("/interview/iv-1", "cand-2", "candidate")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get("/interview/missing", "cand-1", "candidate")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, utils.CodeNotFound, decodeAPIError(t, w).Code)

	w = f.get("/interview/iv-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetResult(t *testing.T) {
	f := newFixture(t)

	w := f.get("/interview/iv-done/result", "cand-1", "candidate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	w = f.get("/interview/iv-done/result", "cand-2", "candidate")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.get("/interview/iv-done/result", "rev-1", "reviewer")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.get("/interview/iv-1/result", "cand-1", "candidate")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMyResults(t *testing.T) {
	f := newFixture(t)

	w := f.get("/results/me", "cand-1", "candidate")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Items []models.InterviewResult `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Items, 1)

	w = f.get("/results/me?limit=zero", "cand-1", "candidate")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordingPlayback(t *testing.T) {
	f := newFixture(t)

	w := f.get("/review/interview/iv-done/recording", "rev-1", "reviewer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "signed=1")

	f.recordings.signErr = utils.E(utils.CodeUnavailable, "fake", "storage unavailable", nil)
	w = f.get("/review/interview/iv-done/recording", "rev-1", "reviewer")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCancellationNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.get("/proctor/cancellation", "cand-1", "candidate")
	assert.Equal(t, http.StatusNoContent, w.Code)

	markers := proctor.NewMarkerStore(f.cache, "cand-1", time.Hour)
	require.NoError(t, markers.WriteCancellation(ctx, proctor.Cancellation{
		Reason:      proctor.ReasonUserCancelled,
		Message:     "You cancelled the interview.",
		InterviewID: "iv-1",
	}))

	w = f.get("/proctor/cancellation", "cand-1", "candidate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reason":"user-cancelled","message":"You cancelled the interview.","interviewId":"iv-1"}`, w.Body.String())

	// read once
	w = f.get("/proctor/cancellation", "cand-1", "candidate")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSessionWSRefusesFinishedInterview(t *testing.T) {
	f := newFixture(t)

	w := f.get("/ws/proctor/iv-done", "cand-1", "candidate")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.get("/ws/proctor/iv-1", "cand-2", "candidate")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type wsFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func dialProctor(t *testing.T, f *fixture, interviewID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/proctor/" + interviewID
	h := http.Header{}
	h.Set("X-Test-Candidate", "cand-1")
	conn, resp, err := websocket.DefaultDialer.Dial(url, h)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var fr wsFrame
		require.NoError(t, conn.ReadJSON(&fr))
		if match(fr) {
			return fr
		}
	}
}

func statePhase(phase proctor.Phase) func(wsFrame) bool {
	return func(fr wsFrame) bool {
		if fr.Type != "state" {
			return false
		}
		var st proctor.State
		return json.Unmarshal(fr.Payload, &st) == nil && st.Phase == phase
	}
}

func TestSessionWSHardRefreshCancels(t *testing.T) {
	f := newFixture(t)
	markers := proctor.NewMarkerStore(f.cache, "cand-1", time.Hour)
	require.NoError(t, markers.Save(context.Background(), proctor.SessionMarker{
		InterviewID: "iv-1",
		Phase:       proctor.PhaseInterview,
	}))

	conn := dialProctor(t, f, "iv-1")

	fr := readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == "exit" })
	var reason proctor.ExitReason
	require.NoError(t, json.Unmarshal(fr.Payload, &reason))
	assert.Equal(t, proctor.ExitHardRefresh, reason.Kind)

	w := f.get("/proctor/cancellation", "cand-1", "candidate")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"hard-refresh"`)
}

func TestSessionWSDropLeavesMarker(t *testing.T) {
	f := newFixture(t)
	conn := dialProctor(t, f, "iv-1")

	readUntil(t, conn, statePhase(proctor.PhaseDeviceCheck))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"viewportWidth":      1440,
			"userAgent":          desktopUA,
			"supportedMimeTypes": []string{"video/webm;codecs=vp9,opus"},
		},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "action",
		"payload": map[string]any{"name": "advance_setup"},
	}))
	readUntil(t, conn, statePhase(proctor.PhaseSetup))

	// drop without a close frame; the next load must see the stale marker
	require.NoError(t, conn.UnderlyingConn().Close())

	again := dialProctor(t, f, "iv-1")
	fr := readUntil(t, again, func(fr wsFrame) bool { return fr.Type == "exit" })
	var reason proctor.ExitReason
	require.NoError(t, json.Unmarshal(fr.Payload, &reason))
	assert.Equal(t, proctor.ExitHardRefresh, reason.Kind)
}

func TestShutdownStopsSessions(t *testing.T) {
	f := newFixture(t)
	conn := dialProctor(t, f, "iv-1")
	readUntil(t, conn, statePhase(proctor.PhaseDeviceCheck))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.proctor.Shutdown(ctx))

	// the server side is gone; reads fail once buffered frames are consumed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var err error
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not closed")
	}

	w := f.get("/ws/proctor/iv-1", "cand-1", "candidate")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCheckOrigin(t *testing.T) {
	log := logrus.New()
	h := NewProctorHandler(nil, nil, nil, nil, nil, ProctorOptions{
		AllowedOrigins: []string{"https://app.example.com", "proctor.example.com"},
	}, log)

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/proctor/iv-1", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, h.checkOrigin(req("https://app.example.com")))
	assert.True(t, h.checkOrigin(req("https://proctor.example.com")))
	assert.True(t, h.checkOrigin(req("")))
	assert.False(t, h.checkOrigin(req("https://evil.example.net")))
}
