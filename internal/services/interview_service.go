package services

import (
	"context"
	"errors"

	"github.com/yoockh/yooproctor/internal/models"
	pgrepo "github.com/yoockh/yooproctor/internal/repositories/postgres"
	"github.com/yoockh/yooproctor/internal/utils"
)

// Interview statuses.
const (
	InterviewScheduled  = "scheduled"
	InterviewInProgress = "in_progress"
	InterviewCompleted  = "completed"
	InterviewRejected   = "rejected"
)

type InterviewService interface {
	Get(ctx context.Context, interviewID string) (*models.Interview, error)
	// GetForCandidate also checks ownership and that the interview can be taken.
	GetForCandidate(ctx context.Context, candidateID, interviewID string) (*models.Interview, error)
	MarkStarted(ctx context.Context, interviewID string) error
	MarkFinished(ctx context.Context, interviewID, status string) error
}

type interviewService struct {
	interviews pgrepo.InterviewRepository
}

func NewInterviewService(interviews pgrepo.InterviewRepository) InterviewService {
	return &interviewService{interviews: interviews}
}

func (s *interviewService) Get(ctx context.Context, interviewID string) (*models.Interview, error) {
	const op = "InterviewService.Get"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	iv, err := s.interviews.GetByID(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get interview", err)
	}
	return iv, nil
}

func (s *interviewService) GetForCandidate(ctx context.Context, candidateID, interviewID string) (*models.Interview, error) {
	const op = "InterviewService.GetForCandidate"

	iv, err := s.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.CandidateID != candidateID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	if len(iv.Questions) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview has no questions", nil)
	}
	return iv, nil
}

func (s *interviewService) MarkStarted(ctx context.Context, interviewID string) error {
	const op = "InterviewService.MarkStarted"

	if _, err := s.interviews.SetStatus(ctx, interviewID, InterviewInProgress, InterviewScheduled); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update interview status", err)
	}
	return nil
}

func (s *interviewService) MarkFinished(ctx context.Context, interviewID, status string) error {
	const op = "InterviewService.MarkFinished"

	if status != InterviewCompleted && status != InterviewRejected {
		return utils.E(utils.CodeInvalidArgument, op, "status must be completed or rejected", nil)
	}
	ok, err := s.interviews.SetStatus(ctx, interviewID, status, InterviewScheduled, InterviewInProgress)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update interview status", err)
	}
	if !ok {
		return utils.E(utils.CodeConflict, op, "interview is already finished", nil)
	}
	return nil
}
