package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/yooproctor/internal/bridge"
	"github.com/yoockh/yooproctor/internal/cache"
	"github.com/yoockh/yooproctor/internal/proctor"
	"github.com/yoockh/yooproctor/internal/services"
	"github.com/yoockh/yooproctor/internal/utils"
)

type ProctorOptions struct {
	RedirectDelay  time.Duration
	CommandTimeout time.Duration
	MarkerTTL      time.Duration
	// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

type ProctorHandler struct {
	interviews services.InterviewService
	results    services.ResultService
	recordings services.RecordingService
	cache      cache.Cache
	archive    *services.ChunkArchive // nil when chunk archiving is off
	opts       ProctorOptions
	log        *logrus.Logger
	upgrader   websocket.Upgrader

	// hijacked connections outlive http.Server.Shutdown, so sessions are
	// tracked here and stopped by Shutdown.
	base     context.Context
	stop     context.CancelFunc
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewProctorHandler(
	interviews services.InterviewService,
	results services.ResultService,
	recordings services.RecordingService,
	c cache.Cache,
	archive *services.ChunkArchive,
	opts ProctorOptions,
	log *logrus.Logger,
) *ProctorHandler {
	h := &ProctorHandler{
		interviews: interviews,
		results:    results,
		recordings: recordings,
		cache:      c,
		archive:    archive,
		opts:       opts,
		log:        log,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	h.base, h.stop = context.WithCancel(context.Background())
	return h
}

// Shutdown stops accepting sessions, cancels the running ones and waits for
// them to close, or for ctx to expire.
func (h *ProctorHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()
	h.stop()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track registers a session. It reports false once Shutdown has begun.
func (h *ProctorHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.sessions.Add(1)
	return true
}

func (h *ProctorHandler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Cancellation returns and clears the notice left by the last cancelled
// session, so the host page can explain the redirect. 204 when there is none.
func (h *ProctorHandler) Cancellation(c *gin.Context) {
	candidateID, ok := requireCandidateID(c)
	if !ok {
		return
	}

	markers := proctor.NewMarkerStore(h.cache, candidateID, h.opts.MarkerTTL)
	notice, found, err := markers.TakeCancellation(c.Request.Context())
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, "ProctorHandler.Cancellation", "failed to read cancellation", err))
		return
	}
	if !found {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, notice)
}

// SessionWS upgrades the connection and runs one proctoring session over it
// until the browser goes away or the session exits.
func (h *ProctorHandler) SessionWS(c *gin.Context) {
	candidateID, ok := requireCandidateID(c)
	if !ok {
		return
	}

	interviewID := c.Param("interview_id")
	iv, err := h.interviews.GetForCandidate(c.Request.Context(), candidateID, interviewID)
	if err != nil {
		writeError(c, err)
		return
	}
	if iv.Status == services.InterviewCompleted || iv.Status == services.InterviewRejected {
		writeError(c, utils.E(utils.CodeConflict, "ProctorHandler.SessionWS", "interview is already finished", nil))
		return
	}

	if !h.track() {
		writeError(c, utils.E(utils.CodeUnavailable, "ProctorHandler.SessionWS", "server is shutting down", nil))
		return
	}
	defer h.sessions.Done()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader already wrote the HTTP error
		return
	}

	log := h.log.WithFields(logrus.Fields{
		"interview_id": interviewID,
		"candidate_id": candidateID,
	})

	b := bridge.New(bridge.NewWSTransport(conn), bridge.Options{
		CommandTimeout: h.opts.CommandTimeout,
		Logger:         log,
	})

	var archiver proctor.ChunkArchiver
	if h.archive != nil {
		archiver = h.archive.For(interviewID, candidateID)
	}

	sess, err := proctor.NewSession(proctor.Config{
		InterviewID:   interviewID,
		CandidateID:   candidateID,
		Questions:     iv.Questions,
		RedirectDelay: h.opts.RedirectDelay,
		Logger:        log,
	}, proctor.Deps{
		Host:      b,
		Media:     b,
		Display:   b,
		Recorders: b,
		Markers:   proctor.NewMarkerStore(h.cache, candidateID, h.opts.MarkerTTL),
		Uploader:  h.recordings,
		Results:   h.results.Poster(candidateID),
		Archiver:  archiver,
		OnStart: func() {
			if err := h.interviews.MarkStarted(context.Background(), interviewID); err != nil {
				log.WithError(err).Warn("failed to mark interview started")
			}
		},
		OnComplete: b.Completed,
	})
	if err != nil {
		log.WithError(err).Error("failed to create proctoring session")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, utils.MessageOf(err)),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stopAfter := context.AfterFunc(h.base, cancel)
	defer stopAfter()

	if err := b.Serve(ctx, sess); err != nil {
		log.WithError(err).Info("proctoring connection ended")
	}
}
