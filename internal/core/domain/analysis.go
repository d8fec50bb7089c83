package domain

import (
	"io"
	"time"
)

type AnalysisStatus string

const (
	StatusQueued     AnalysisStatus = "queued"
	StatusProcessing AnalysisStatus = "processing"
	StatusSucceeded  AnalysisStatus = "succeeded"
	StatusFailed     AnalysisStatus = "failed"
)

// Analysis is one accepted upload and its detection outcome.
type Analysis struct {
	ID          string             `json:"id"`
	Filename    string             `json:"filename"`
	MimeType    string             `json:"mime_type"`
	StoragePath string             `json:"storage_path"`
	SizeBytes   int64              `json:"size_bytes"`
	Status      AnalysisStatus     `json:"status"`
	Error       string             `json:"error,omitempty"`
	Result      *DetectionResponse `json:"result,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Upload is the opaque file handle handed to the session controller.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

// UploadProgress reports transfer state for one attempt. Percentage is
// floor(loaded*100/total) and non-decreasing within a transfer.
type UploadProgress struct {
	Loaded     int64 `json:"loaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

type AnalysisPhase string

const (
	PhaseIdle           AnalysisPhase = "idle"
	PhaseValidating     AnalysisPhase = "validating"
	PhaseUploading      AnalysisPhase = "uploading"
	PhaseAwaitingResult AnalysisPhase = "awaiting_result"
	PhaseSucceeded      AnalysisPhase = "succeeded"
	PhaseFailed         AnalysisPhase = "failed"
	PhaseCancelled      AnalysisPhase = "cancelled"
)

// SessionSnapshot is the observable state of one analysis session. Consumers
// watch snapshots; errors never escape the session as panics or raw values.
type SessionSnapshot struct {
	Phase           AnalysisPhase      `json:"phase"`
	ProgressPercent int                `json:"progress_percent"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	Result          *DetectionResponse `json:"result,omitempty"`
	Filename        string             `json:"filename,omitempty"`
}
