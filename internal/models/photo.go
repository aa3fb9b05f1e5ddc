package models

import "time"

// ProcessingStatus tracks the resize pipeline state of a photo.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Photo is one image asset inside a collection.
type Photo struct {
	ID string `json:"id"`
	// CollectionID must reference an existing collection.
	CollectionID     string `json:"collectionId"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	ThumbnailURL     string `json:"thumbnailUrl"`
	WebURL           string `json:"webUrl"`
	OriginalURL      string `json:"originalUrl"`
	HighResURL       string `json:"highResUrl,omitempty"`
	// OrderIndex is unique per collection.
	OrderIndex int              `json:"orderIndex"`
	Status     ProcessingStatus `json:"status"`
	Size       int64            `json:"size"`
	MimeType   string           `json:"mimeType"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// Cover returns the cover representation of the photo.
func (p Photo) Cover() CoverPhoto {
	return CoverPhoto{PhotoID: p.ID, ThumbnailURL: p.ThumbnailURL, WebURL: p.WebURL}
}
