package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a download job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"   // StatusPending indicates the job is created but not yet started
	StatusRunning   JobStatus = "running"   // StatusRunning indicates pages are being fetched or written
	StatusCompleted JobStatus = "completed" // StatusCompleted indicates the job finished successfully
	StatusFailed    JobStatus = "failed"    // StatusFailed indicates the job encountered a fatal error
)

// DownloadJob tracks one invocation of the downloader from creation to a
// terminal status. It lives only for the duration of the run.
type DownloadJob struct {
	ID               string    `json:"id"`
	Ticker           string    `json:"ticker"`
	Date             string    `json:"date"`
	OutputPath       string    `json:"output_path"`
	Status           JobStatus `json:"status"`
	Pages            int       `json:"pages"`
	RecordsCollected int       `json:"records_collected"`
	RowsWritten      int       `json:"rows_written"`
	Termination      string    `json:"termination,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

// NewDownloadJob creates a pending job. An empty id gets a random UUID.
func NewDownloadJob(id, ticker, date, outputPath string) *DownloadJob {
	if id == "" {
		id = uuid.NewString()
	}
	return &DownloadJob{
		ID:         id,
		Ticker:     ticker,
		Date:       date,
		OutputPath: outputPath,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Start moves the job to running.
func (j *DownloadJob) Start() error {
	if j.Status != StatusPending {
		return fmt.Errorf("cannot start job %s in status %s", j.ID, j.Status)
	}
	j.Status = StatusRunning
	j.StartedAt = time.Now().UTC()
	return nil
}

// RecordFetch stores the pagination outcome.
func (j *DownloadJob) RecordFetch(pages, records int, termination string) {
	j.Pages = pages
	j.RecordsCollected = records
	j.Termination = termination
}

// Complete marks the job as finished successfully.
func (j *DownloadJob) Complete(rowsWritten int) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("cannot complete job %s in status %s", j.ID, j.Status)
	}
	j.Status = StatusCompleted
	j.RowsWritten = rowsWritten
	j.CompletedAt = time.Now().UTC()
	return nil
}

// Fail marks the job as failed. Failing an already terminal job is a no-op.
func (j *DownloadJob) Fail(err error) {
	if j.IsTerminal() {
		return
	}
	j.Status = StatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	j.CompletedAt = time.Now().UTC()
}

// IsTerminal reports whether the job reached completed or failed.
func (j *DownloadJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Duration returns how long the job ran, or zero if it never started.
func (j *DownloadJob) Duration() time.Duration {
	if j.StartedAt.IsZero() {
		return 0
	}
	if j.CompletedAt.IsZero() {
		return time.Since(j.StartedAt)
	}
	return j.CompletedAt.Sub(j.StartedAt)
}
