package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/yooproctor/internal/services"
	"github.com/yoockh/yooproctor/internal/utils"
)

const defaultPlaybackTTL = 15 * time.Minute

type InterviewHandler struct {
	interviews  services.InterviewService
	results     services.ResultService
	recordings  services.RecordingService
	playbackTTL time.Duration
}

func NewInterviewHandler(interviews services.InterviewService, results services.ResultService, recordings services.RecordingService, playbackTTL time.Duration) *InterviewHandler {
	if playbackTTL <= 0 {
		playbackTTL = defaultPlaybackTTL
	}
	return &InterviewHandler{
		interviews:  interviews,
		results:     results,
		recordings:  recordings,
		playbackTTL: playbackTTL,
	}
}

type QuestionResponse struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

type InterviewResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Position    string             `json:"position"`
	CompanyName string             `json:"company_name"`
	Status      string             `json:"status"`
	Questions   []QuestionResponse `json:"questions"`
}

// Get returns the interview the host page is about to proctor.
func (h *InterviewHandler) Get(c *gin.Context) {
	candidateID, ok := requireCandidateID(c)
	if !ok {
		return
	}

	iv, err := h.interviews.GetForCandidate(c.Request.Context(), candidateID, c.Param("interview_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	resp := InterviewResponse{
		ID:          iv.ID,
		Title:       iv.Title,
		Position:    iv.Position,
		CompanyName: iv.CompanyName,
		Status:      iv.Status,
		Questions:   make([]QuestionResponse, 0, len(iv.Questions)),
	}
	for _, q := range iv.Questions {
		resp.Questions = append(resp.Questions, QuestionResponse{
			ID:       q.ID,
			Position: q.Position,
			Text:     q.Text,
			Category: q.Category,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InterviewHandler) Result(c *gin.Context) {
	candidateID, ok := requireCandidateID(c)
	if !ok {
		return
	}

	res, err := h.results.Get(c.Request.Context(), c.Param("interview_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if res.CandidateID != candidateID && !isReviewer(c) {
		writeError(c, utils.E(utils.CodeForbidden, "InterviewHandler.Result", "forbidden", nil))
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *InterviewHandler) MyResults(c *gin.Context) {
	candidateID, ok := requireCandidateID(c)
	if !ok {
		return
	}

	limit := int64(20)
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.MyResults", "invalid limit", err))
			return
		}
		limit = n
	}

	items, err := h.results.ListByCandidate(c.Request.Context(), candidateID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Recording hands reviewers a short-lived playback URL. Mounted behind
// RequireReviewer.
func (h *InterviewHandler) Recording(c *gin.Context) {
	res, err := h.results.Get(c.Request.Context(), c.Param("interview_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if res.VideoURL == "" {
		writeError(c, utils.E(utils.CodeNotFound, "InterviewHandler.Recording", "no recording was stored for this interview", nil))
		return
	}

	url, err := h.recordings.PlaybackURL(c.Request.Context(), res.VideoURL, h.playbackTTL)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_at": time.Now().Add(h.playbackTTL).UTC().Format(time.RFC3339),
	})
}
