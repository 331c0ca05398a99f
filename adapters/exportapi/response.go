package exportapi

import (
	"io"
	"time"
)

// Response provides a minimal response interface for transport adapters.
type Response interface {
	SetHeader(name, value string)
	DelHeader(name string)
	WriteHeader(status int)
	Write(data []byte) (int, error)
	WriteJSON(status int, payload any) error
	Writer() (io.Writer, bool)
}

// GridListResponse lists the exportable grids.
type GridListResponse struct {
	Grids []string `json:"grids"`
}

// SaveResponse describes an export stored as an artifact.
type SaveResponse struct {
	ID          string    `json:"id"`
	Grid        string    `json:"grid"`
	Filename    string    `json:"filename"`
	Rows        int64     `json:"rows"`
	Bytes       int64     `json:"bytes"`
	CreatedAt   time.Time `json:"created_at"`
	DownloadURL string    `json:"download_url"`
}

// JobResponse describes a queued export. DownloadURL serves the workbook
// once the job completes.
type JobResponse struct {
	ID          string `json:"id"`
	Grid        string `json:"grid"`
	DownloadURL string `json:"download_url"`
}

// ErrorResponse describes JSON error responses.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains error details.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
