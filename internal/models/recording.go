package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecordingChunk is one archived recorder timeslice.
type RecordingChunk struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID string             `bson:"interview_id" json:"interview_id"`
	CandidateID string             `bson:"candidate_id" json:"candidate_id"`
	Seq         int64              `bson:"seq" json:"seq"`
	MimeType    string             `bson:"mime_type" json:"mime_type"`
	Data        []byte             `bson:"data" json:"-"`
	Size        int                `bson:"size" json:"size"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
