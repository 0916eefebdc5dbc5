package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yooproctor/internal/models"
	"github.com/yoockh/yooproctor/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ResultRepository interface {
	// Insert fails with utils.ErrConflict when the interview already has a
	// finalized result.
	Insert(ctx context.Context, r *models.InterviewResult) error
	GetByInterviewID(ctx context.Context, interviewID string) (*models.InterviewResult, error)
	ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.InterviewResult, error)
}

type resultRepo struct {
	col *mongo.Collection
}

func NewResultRepo(db *mongo.Database) ResultRepository {
	return &resultRepo{col: db.Collection("interview_results")}
}

func (r *resultRepo) Insert(ctx context.Context, res *models.InterviewResult) error {
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, res)
	if mongo.IsDuplicateKeyError(err) {
		return utils.ErrConflict
	}
	return err
}

func (r *resultRepo) GetByInterviewID(ctx context.Context, interviewID string) (*models.InterviewResult, error) {
	var res models.InterviewResult
	err := r.col.FindOne(ctx, bson.M{"interview_id": interviewID}).Decode(&res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *resultRepo) ListByCandidate(ctx context.Context, candidateID string, limit int64) ([]models.InterviewResult, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := r.col.Find(ctx,
		bson.M{"candidate_id": candidateID},
		options.Find().
			SetSort(bson.D{{Key: "completed_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.InterviewResult
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
