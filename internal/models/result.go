package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ResultCompleted = "completed"
	ResultRejected  = "rejected"
)

// Violation is one logged proctoring violation.
type Violation struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Reason    string    `bson:"reason" json:"reason"`
}

// CompletionRecord is posted once per interview on normal completion.
type CompletionRecord struct {
	TotalDurationSeconds int64       `json:"totalDurationSeconds"`
	VideoURL             string      `json:"videoUrl"`
	ViolationLog         []Violation `json:"violationLog"`
	ViolationCount       int         `json:"violationCount"`
	ForcedSubmission     bool        `json:"forcedSubmission"`
	Reason               string      `json:"reason,omitempty"`
}

// RejectionRecord is posted immediately when the violation budget is exhausted.
type RejectionRecord struct {
	Status               string      `json:"status"`
	RejectionReason      string      `json:"rejectionReason"`
	TotalDurationSeconds int64       `json:"totalDurationSeconds"`
	ViolationLog         []Violation `json:"violationLog"`
	ViolationCount       int         `json:"violationCount"`
	CompletedAt          string      `json:"completedAt"` // RFC 3339
}

// InterviewResult is the finalized record stored for an interview.
type InterviewResult struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID string             `bson:"interview_id" json:"interview_id"`
	CandidateID string             `bson:"candidate_id,omitempty" json:"candidate_id,omitempty"`
	Status      string             `bson:"status" json:"status"` // completed|rejected

	TotalDurationSeconds int64       `bson:"total_duration_seconds" json:"total_duration_seconds"`
	VideoURL             string      `bson:"video_url,omitempty" json:"video_url,omitempty"`
	ViolationLog         []Violation `bson:"violation_log" json:"violation_log"`
	ViolationCount       int         `bson:"violation_count" json:"violation_count"`
	ForcedSubmission     bool        `bson:"forced_submission" json:"forced_submission"`
	Reason               string      `bson:"reason,omitempty" json:"reason,omitempty"`

	CompletedAt time.Time `bson:"completed_at" json:"completed_at"`
}
