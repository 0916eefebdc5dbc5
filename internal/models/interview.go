package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Interview is owned by the host application; the proctoring core only reads it.
type Interview struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CandidateID string         `gorm:"column:candidate_id;type:uuid;index" json:"candidate_id"`
	Title       string         `gorm:"column:title;type:text" json:"title"`
	Position    string         `gorm:"column:position;type:text" json:"position"`
	CompanyName string         `gorm:"column:company_name;type:text" json:"company_name"`
	Status      string         `gorm:"column:status;type:text" json:"status"` // scheduled|in_progress|completed|rejected|cancelled
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;type:timestamptz" json:"created_at"`

	Questions []Question `gorm:"foreignKey:InterviewID" json:"questions"`
}

func (Interview) TableName() string { return "interviews" }

type Question struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID string         `gorm:"column:interview_id;type:uuid;index" json:"interview_id"`
	Position    int            `gorm:"column:position;type:integer" json:"position"`
	Text        string         `gorm:"column:text;type:text" json:"text"`
	Category    string         `gorm:"column:category;type:text" json:"category,omitempty"`
	Difficulty  string         `gorm:"column:difficulty;type:text" json:"difficulty,omitempty"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]" json:"tags,omitempty"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
}

func (Question) TableName() string { return "interview_questions" }
