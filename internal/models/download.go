package models

import "time"

// Resolution selects which rendition of a photo is delivered.
type Resolution string

const (
	ResolutionWeb      Resolution = "web"
	ResolutionHighRes  Resolution = "high_res"
	ResolutionOriginal Resolution = "original"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	switch r {
	case ResolutionWeb, ResolutionHighRes, ResolutionOriginal:
		return true
	}
	return false
}

// DownloadPin is a short numeric credential gating one collection or photo.
//
// CollectionID is always set. For photo-scoped PINs it holds the parent
// collection of PhotoID, which keeps share matching a single comparison.
type DownloadPin struct {
	ID           string     `json:"id"`
	Pin          string     `json:"pin"`
	CollectionID string     `json:"collectionId"`
	PhotoID      string     `json:"photoId,omitempty"`
	ClientEmail  string     `json:"clientEmail,omitempty"`
	Resolution   Resolution `json:"resolution"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"maxAttempts"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// PhotoScoped reports whether the PIN grants a single photo.
func (p DownloadPin) PhotoScoped() bool {
	return p.PhotoID != ""
}

// Expired reports whether the PIN lifetime has elapsed.
func (p DownloadPin) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Exhausted reports whether no verification attempts remain.
func (p DownloadPin) Exhausted() bool {
	return p.Attempts >= p.MaxAttempts
}

// ActivityType labels an audit record.
type ActivityType string

const (
	ActivityPinRequested      ActivityType = "pin_requested"
	ActivityPinVerified       ActivityType = "pin_verified"
	ActivityPinRejected       ActivityType = "pin_rejected"
	ActivitySignatureRejected ActivityType = "signature_rejected"
	ActivityDownloadServed    ActivityType = "download_served"
	ActivityDownloadMissing   ActivityType = "download_missing"
)

// Activity is an audit record of a download authorization event.
type Activity struct {
	ID           string       `json:"id"`
	Type         ActivityType `json:"type"`
	ShareToken   string       `json:"shareToken,omitempty"`
	PinID        string       `json:"pinId,omitempty"`
	CollectionID string       `json:"collectionId,omitempty"`
	PhotoID      string       `json:"photoId,omitempty"`
	Path         string       `json:"path,omitempty"`
	Success      bool         `json:"success"`
	Reason       string       `json:"reason,omitempty"`
	RemoteAddr   string       `json:"remoteAddr,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}
