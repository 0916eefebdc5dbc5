package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/proctor"
	mongorepo "github.com/yoockh/yooproctor/internal/repositories/mongo"
	"github.com/yoockh/yooproctor/internal/utils"
)

type ResultService interface {
	Complete(ctx context.Context, candidateID, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error)
	Reject(ctx context.Context, candidateID, interviewID string, rec models.RejectionRecord) (*models.InterviewResult, error)
	Get(ctx context.Context, interviewID string) (*models.InterviewResult, error)
	ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.InterviewResult, error)
	// Poster binds the service to one candidate for a proctoring session.
	Poster(candidateID string) proctor.ResultPoster
}

type resultService struct {
	results    mongorepo.ResultRepository
	interviews InterviewService
	log        *logrus.Entry
}

func NewResultService(results mongorepo.ResultRepository, interviews InterviewService, log *logrus.Logger) ResultService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &resultService{results: results, interviews: interviews, log: log.WithField("component", "results")}
}

func (s *resultService) Complete(ctx context.Context, candidateID, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error) {
	const op = "ResultService.Complete"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if rec.ViolationCount != len(rec.ViolationLog) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "violation count does not match the violation log", nil)
	}
	if rec.TotalDurationSeconds < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "duration must not be negative", nil)
	}

	res := &models.InterviewResult{
		InterviewID:          interviewID,
		CandidateID:          candidateID,
		Status:               models.ResultCompleted,
		TotalDurationSeconds: rec.TotalDurationSeconds,
		VideoURL:             rec.VideoURL,
		ViolationLog:         violationLog(rec.ViolationLog),
		ViolationCount:       rec.ViolationCount,
		ForcedSubmission:     rec.ForcedSubmission,
		Reason:               rec.Reason,
		CompletedAt:          time.Now().UTC(),
	}
	stored, err := s.store(ctx, op, res)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, interviewID, stored.Status)
	return stored, nil
}

func (s *resultService) Reject(ctx context.Context, candidateID, interviewID string, rec models.RejectionRecord) (*models.InterviewResult, error) {
	const op = "ResultService.Reject"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if rec.Status != models.ResultRejected {
		return nil, utils.E(utils.CodeInvalidArgument, op, "status must be rejected", nil)
	}
	if rec.ViolationCount != len(rec.ViolationLog) {
		return nil, utils.E(utils.CodeInvalidArgument, op, "violation count does not match the violation log", nil)
	}
	completedAt, err := time.Parse(time.RFC3339, rec.CompletedAt)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "completedAt must be RFC 3339", err)
	}

	res := &models.InterviewResult{
		InterviewID:          interviewID,
		CandidateID:          candidateID,
		Status:               models.ResultRejected,
		TotalDurationSeconds: rec.TotalDurationSeconds,
		ViolationLog:         violationLog(rec.ViolationLog),
		ViolationCount:       rec.ViolationCount,
		ForcedSubmission:     true,
		Reason:               rec.RejectionReason,
		CompletedAt:          completedAt.UTC(),
	}
	stored, err := s.store(ctx, op, res)
	if err != nil {
		return nil, err
	}
	s.finish(ctx, interviewID, stored.Status)
	return stored, nil
}

// store inserts the result. A repeat of the same outcome returns the stored
// record so a retried submission whose first attempt landed still succeeds.
func (s *resultService) store(ctx context.Context, op string, res *models.InterviewResult) (*models.InterviewResult, error) {
	err := s.results.Insert(ctx, res)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, utils.ErrConflict) {
		return nil, utils.E(utils.CodeInternal, op, "failed to store interview result", err)
	}

	existing, gerr := s.results.GetByInterviewID(ctx, res.InterviewID)
	if gerr != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load existing interview result", gerr)
	}
	if existing.Status != res.Status || existing.CandidateID != res.CandidateID {
		return nil, utils.E(utils.CodeConflict, op, "a result for this interview was already recorded", err)
	}
	return existing, nil
}

// finish updates the interview row. The stored result is authoritative, so a
// failure here is logged rather than returned.
func (s *resultService) finish(ctx context.Context, interviewID, status string) {
	if s.interviews == nil {
		return
	}
	if err := s.interviews.MarkFinished(ctx, interviewID, status); err != nil && !utils.IsCode(err, utils.CodeConflict) {
		s.log.WithError(err).WithField("interview_id", interviewID).Warn("interview status not updated")
	}
}

func (s *resultService) Get(ctx context.Context, interviewID string) (*models.InterviewResult, error) {
	const op = "ResultService.Get"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	out, err := s.results.GetByInterviewID(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "result not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get result", err)
	}
	return out, nil
}

func (s *resultService) ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.InterviewResult, error) {
	const op = "ResultService.ListByCandidate"

	if candidateID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "candidate_id is required", nil)
	}
	out, err := s.results.ListByCandidate(ctx, candidateID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list results", err)
	}
	return out, nil
}

func (s *resultService) Poster(candidateID string) proctor.ResultPoster {
	return candidatePoster{svc: s, candidateID: candidateID}
}

type candidatePoster struct {
	svc         ResultService
	candidateID string
}

func (p candidatePoster) PostCompletion(ctx context.Context, interviewID string, rec models.CompletionRecord) (*models.InterviewResult, error) {
	return p.svc.Complete(ctx, p.candidateID, interviewID, rec)
}

func (p candidatePoster) PostRejection(ctx context.Context, interviewID string, rec models.RejectionRecord) error {
	_, err := p.svc.Reject(ctx, p.candidateID, interviewID, rec)
	return err
}

func violationLog(v []models.Violation) []models.Violation {
	if v == nil {
		return []models.Violation{}
	}
	return v
}
