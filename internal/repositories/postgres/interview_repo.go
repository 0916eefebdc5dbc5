package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InterviewRepository interface {
	GetByID(ctx context.Context, interviewID string) (*models.Interview, error)
	// SetStatus moves an interview out of fromStatuses; it reports false when
	// the row was not in one of them.
	SetStatus(ctx context.Context, interviewID, status string, fromStatuses ...string) (bool, error)
	UpsertQuestions(ctx context.Context, qs []models.Question) error
}

type interviewRepo struct {
	db *gorm.DB
}

func NewInterviewRepo(db *gorm.DB) InterviewRepository {
	return &interviewRepo{db: db}
}

func (r *interviewRepo) GetByID(ctx context.Context, interviewID string) (*models.Interview, error) {
	var iv models.Interview
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", interviewID).
		Take(&iv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &iv, err
}

func (r *interviewRepo) SetStatus(ctx context.Context, interviewID, status string, fromStatuses ...string) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ?", interviewID)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Update("status", status)
	return res.RowsAffected > 0, res.Error
}

func (r *interviewRepo) UpsertQuestions(ctx context.Context, qs []models.Question) error {
	if len(qs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "text", "category", "difficulty", "tags", "metadata"}),
		}).
		Create(&qs).Error
}
