package models

import (
	"database/sql/driver"
	"time"
)

// ExportType enumerates supported export categories.
type ExportType string

const (
	// ExportTypeDaySheet renders one day as a printable PDF.
	ExportTypeDaySheet ExportType = "day_sheet"
	// ExportTypeRangeCSV renders a day range as a CSV of daily totals.
	ExportTypeRangeCSV ExportType = "range_csv"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJobParams stores request-scoped options persisted as JSONB.
// DayKey is set for day_sheet jobs; From/To for range_csv jobs.
type ExportJobParams struct {
	DayKey string `json:"dayKey,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

func (p ExportJobParams) Value() (driver.Value, error) {
	return jsonbValue(p, "export job params")
}

func (p *ExportJobParams) Scan(value interface{}) error {
	*p = ExportJobParams{}
	return jsonbScan(p, value, "export job params")
}

// ExportJob is persisted background export metadata.
type ExportJob struct {
	ID           string          `db:"id" json:"id"`
	SchoolID     string          `db:"school_id" json:"school_id"`
	PlanID       string          `db:"plan_id" json:"plan_id"`
	Type         ExportType      `db:"type" json:"type"`
	Params       ExportJobParams `db:"params" json:"params"`
	Status       ExportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultPath   *string         `db:"result_path" json:"-"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// ExportJobStatus is the API view of a job, with the signed download link
// attached once the job finished.
type ExportJobStatus struct {
	ExportJob
	DownloadURL *string    `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"download_expires_at,omitempty"`
}
