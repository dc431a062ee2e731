package store

import (
	"time"

	"github.com/JohnPlummer/essay-marker/marker"
)

// Result statuses
const (
	StatusMarked = "marked"
	StatusFailed = "failed"
)

// RunRecord is the stored summary of one marking run.
type RunRecord struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	RubricName       string         `gorm:"size:255" json:"rubric_name"`
	EssayCount       int            `json:"essay_count"`
	Marked           int            `json:"marked"`
	Failed           int            `json:"failed"`
	ClassSummaryPath string         `gorm:"size:512" json:"class_summary_path,omitempty"`
	ClassError       string         `gorm:"type:text" json:"class_error,omitempty"`
	StartedAt        time.Time      `gorm:"index" json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	Results          []ResultRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"results,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ResultRecord is the outcome of one essay within a run.
type ResultRecord struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	RunID       string `gorm:"size:36;index" json:"-"`
	Position    int    `json:"position"`
	EssayName   string `gorm:"size:255" json:"essay_name"`
	Status      string `gorm:"size:16" json:"status"`
	Stage       string `gorm:"size:32" json:"stage,omitempty"`
	StoragePath string `gorm:"size:512" json:"storage_path,omitempty"`
	Error       string `gorm:"type:text" json:"error,omitempty"`
}

// NewRunRecord flattens a run for storage. Successful essays come first in
// processing order, followed by failures.
func NewRunRecord(run *marker.Run) RunRecord {
	record := RunRecord{
		ID:               run.ID,
		RubricName:       run.RubricName,
		EssayCount:       run.EssayCount,
		Marked:           len(run.Results),
		Failed:           len(run.Failures),
		ClassSummaryPath: run.ClassSummaryPath,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
	}
	if run.ClassErr != nil {
		record.ClassError = run.ClassErr.Error()
	}

	for _, result := range run.Results {
		record.Results = append(record.Results, ResultRecord{
			Position:    len(record.Results),
			EssayName:   result.EssayName,
			Status:      StatusMarked,
			StoragePath: result.StoragePath,
		})
	}
	for _, failure := range run.Failures {
		record.Results = append(record.Results, ResultRecord{
			Position:  len(record.Results),
			EssayName: failure.EssayName,
			Status:    StatusFailed,
			Stage:     string(failure.Stage),
			Error:     failure.Err.Error(),
		})
	}

	return record
}
