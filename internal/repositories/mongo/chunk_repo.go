package mongo

import (
	"context"
	"time"

	"github.com/yoockh/yooproctor/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChunkRepository interface {
	// Upsert is idempotent on (interview_id, seq) so redelivered stream
	// entries do not duplicate chunks.
	Upsert(ctx context.Context, c *models.RecordingChunk) error
	ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.RecordingChunk, error)
	DeleteByInterview(ctx context.Context, interviewID string) (int64, error)
}

type chunkRepo struct {
	col *mongo.Collection
}

func NewChunkRepo(db *mongo.Database) ChunkRepository {
	return &chunkRepo{col: db.Collection("recording_chunks")}
}

func (r *chunkRepo) Upsert(ctx context.Context, c *models.RecordingChunk) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": c.InterviewID, "seq": c.Seq},
		bson.M{"$setOnInsert": bson.M{
			"candidate_id": c.CandidateID,
			"mime_type":    c.MimeType,
			"data":         c.Data,
			"size":         c.Size,
			"timestamp":    c.Timestamp,
			"expires_at":   c.ExpiresAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *chunkRepo) ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.RecordingChunk, error) {
	if limit <= 0 {
		limit = 2000
	}

	cur, err := r.col.Find(ctx,
		bson.M{"interview_id": interviewID},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.RecordingChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) DeleteByInterview(ctx context.Context, interviewID string) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"interview_id": interviewID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
