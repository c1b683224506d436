package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/channelhub/backend/internal/domain/job"
)

// JobModel is the persistence model for the Job entity. Payload and Result
// are stored as JSON documents; Duration is stored in milliseconds.
type JobModel struct {
	ID        uuid.UUID    `gorm:"type:uuid;primary_key"`
	Name      string       `gorm:"type:varchar(255);not null"`
	Type      job.Type     `gorm:"type:varchar(40);not null;index:idx_job_type_state,priority:1"`
	State     job.State    `gorm:"type:varchar(20);not null;index:idx_job_type_state,priority:2;index:idx_job_state_next_run,priority:1"`
	Priority  job.Priority `gorm:"type:varchar(10);not null"`
	AccountID uuid.UUID    `gorm:"type:uuid;not null;index"`
	ShopID    *uuid.UUID   `gorm:"type:uuid;index"`

	Progress       int `gorm:"not null;default:0"`
	ProcessedItems int `gorm:"not null;default:0"`
	TotalItems     int `gorm:"not null;default:0"`

	Retries    int `gorm:"not null;default:0"`
	MaxRetries int `gorm:"not null;default:3"`

	NextRunAt   *time.Time `gorm:"index:idx_job_state_next_run,priority:2"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationMS  int64 `gorm:"column:duration_ms;not null;default:0"`

	PayloadJSON string `gorm:"type:jsonb;column:payload;default:'{}'"`
	ResultJSON  string `gorm:"type:jsonb;column:result"`
	LastError   string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobModel) TableName() string {
	return "jobs"
}

// ToDomain converts the persistence model to a domain Job entity.
func (m *JobModel) ToDomain() *job.Job {
	j := &job.Job{
		ID:             m.ID,
		Name:           m.Name,
		Type:           m.Type,
		State:          m.State,
		Priority:       m.Priority,
		AccountID:      m.AccountID,
		ShopID:         m.ShopID,
		Progress:       m.Progress,
		ProcessedItems: m.ProcessedItems,
		TotalItems:     m.TotalItems,
		Retries:        m.Retries,
		MaxRetries:     m.MaxRetries,
		NextRunAt:      m.NextRunAt,
		StartedAt:      m.StartedAt,
		CompletedAt:    m.CompletedAt,
		Duration:       time.Duration(m.DurationMS) * time.Millisecond,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.PayloadJSON != "" {
		var p job.Payload
		if err := json.Unmarshal([]byte(m.PayloadJSON), &p); err == nil {
			j.Payload = p
		}
	}
	if m.ResultJSON != "" {
		var r map[string]any
		if err := json.Unmarshal([]byte(m.ResultJSON), &r); err == nil {
			j.Result = r
		}
	}
	return j
}

// FromDomain populates the persistence model from a domain Job entity.
func (m *JobModel) FromDomain(j *job.Job) {
	m.ID = j.ID
	m.Name = j.Name
	m.Type = j.Type
	m.State = j.State
	m.Priority = j.Priority
	m.AccountID = j.AccountID
	m.ShopID = j.ShopID
	m.Progress = j.Progress
	m.ProcessedItems = j.ProcessedItems
	m.TotalItems = j.TotalItems
	m.Retries = j.Retries
	m.MaxRetries = j.MaxRetries
	m.NextRunAt = j.NextRunAt
	m.StartedAt = j.StartedAt
	m.CompletedAt = j.CompletedAt
	m.DurationMS = j.Duration.Milliseconds()
	m.LastError = j.LastError
	m.CreatedAt = j.CreatedAt
	m.UpdatedAt = j.UpdatedAt

	if b, err := json.Marshal(j.Payload); err == nil {
		m.PayloadJSON = string(b)
	} else {
		m.PayloadJSON = "{}"
	}
	if len(j.Result) > 0 {
		if b, err := json.Marshal(j.Result); err == nil {
			m.ResultJSON = string(b)
		}
	} else {
		m.ResultJSON = ""
	}
}

// JobModelFromDomain creates a persistence model from a domain Job.
func JobModelFromDomain(j *job.Job) *JobModel {
	m := &JobModel{}
	m.FromDomain(j)
	return m
}
