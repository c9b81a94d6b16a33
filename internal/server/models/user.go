package models

import "time"

// User is an allowlisted identity. Only a keyed fingerprint of the current
// token is stored; the token itself is handed out once.
type User struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`

	Traffic Traffic `json:"traffic"`
}

// Traffic counts completed uploads and raw downloads of a user's files.
// The Last fields are nil until the first transfer in that direction.
type Traffic struct {
	UploadTimes    int64      `json:"total_upload_times"`
	UploadBytes    int64      `json:"total_upload_bytes"`
	DownloadTimes  int64      `json:"total_download_times"`
	DownloadBytes  int64      `json:"total_download_bytes"`
	LastUploadAt   *time.Time `json:"last_upload_at,omitempty"`
	LastDownloadAt *time.Time `json:"last_download_at,omitempty"`
}

// Direction selects which half of Traffic a transfer is added to.
type Direction int

const (
	Upload Direction = iota
	Download
)

// Add counts one transfer of n bytes finished at at.
func (t *Traffic) Add(dir Direction, n int64, at time.Time) {
	switch dir {
	case Upload:
		t.UploadTimes++
		t.UploadBytes += n
		t.LastUploadAt = &at
	case Download:
		t.DownloadTimes++
		t.DownloadBytes += n
		t.LastDownloadAt = &at
	}
}

// Usage is a per-owner aggregate derived from live file metadata.
type Usage struct {
	Bytes int64
	Files int
}
