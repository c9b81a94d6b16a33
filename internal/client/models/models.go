// Package models mirrors the JSON documents returned by the blobkeeper API.
package models

import "time"

type FileSummary struct {
	ID             string    `json:"id"`
	URL            string    `json:"url"`
	PreviewURL     string    `json:"preview_url"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	SizeHuman      string    `json:"size_human"`
	Downloads      int64     `json:"downloads"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessAt   time.Time `json:"last_access_at"`
	AvailableBytes int64     `json:"available_bytes,omitempty"`
}

type Traffic struct {
	UploadTimes    int64      `json:"total_upload_times"`
	UploadBytes    int64      `json:"total_upload_bytes"`
	DownloadTimes  int64      `json:"total_download_times"`
	DownloadBytes  int64      `json:"total_download_bytes"`
	LastUploadAt   *time.Time `json:"last_upload_at,omitempty"`
	LastDownloadAt *time.Time `json:"last_download_at,omitempty"`
}

type UserInfo struct {
	ID             string  `json:"id"`
	UsedBytes      int64   `json:"used_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	FileCount      int     `json:"file_count"`
	Usage          string  `json:"usage"`
	Traffic        Traffic `json:"traffic"`
	Token          string  `json:"token,omitempty"`
}

type Enrollment struct {
	UserID  string `json:"user_id"`
	Token   string `json:"token,omitempty"`
	Created bool   `json:"created"`
}
