package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Job is an execution record for a background task.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	TaskName    string         `gorm:"column:task_name;type:varchar(100);index;not null" json:"taskName"`
	TriggeredBy string         `gorm:"column:triggered_by;type:varchar(32)" json:"triggeredBy"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"errorMsg,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updatedAt"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (Job) TableName() string {
	return "task_jobs"
}

type reconcilePayload struct {
	JobID  string `json:"job_id"`
	LinkID string `json:"link_id,omitempty"`
}
