// Package models defines server-side records persisted by the metadata
// repositories.
package models

import "time"

// File describes one live blob. Its bytes live in the content store under
// the same ID. LastAccessAt starts equal to CreatedAt and moves on every
// download, together with Downloads.
type File struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Downloads    int64     `json:"downloads"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
}
