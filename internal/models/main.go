// Package models defines the core data structures for collections, photos,
// share links, download PINs, favorites and audit activity.
package models

import (
	"encoding/json"
	"time"
)

// Visibility controls who may open a collection gallery.
type Visibility string

const (
	// Public collections are listed and viewable by anyone.
	Public Visibility = "public"
	// Private collections are only reachable through a share link.
	Private Visibility = "private"
	// PasswordProtected collections require the share password.
	PasswordProtected Visibility = "password_protected"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case Public, Private, PasswordProtected:
		return true
	}
	return false
}

// CoverPhoto is the denormalized cover of a collection.
type CoverPhoto struct {
	PhotoID      string `json:"photoId"`
	ThumbnailURL string `json:"thumbnailUrl"`
	WebURL       string `json:"webUrl"`
}

// Collection is a gallery owned by a photographer account.
type Collection struct {
	// ID is the unique identifier of the collection.
	ID string `json:"id"`
	// Slug is globally unique and immutable after creation.
	Slug string `json:"slug"`
	// OwnerID references the owning account.
	OwnerID     string     `json:"ownerId"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility"`
	// PhotoCount is maintained by the store as photos are added and removed.
	PhotoCount int         `json:"photoCount"`
	CoverPhoto *CoverPhoto `json:"coverPhoto,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	// Design is an opaque layout blob owned by the UI.
	Design json.RawMessage `json:"design,omitempty"`
	// AllowDownloads gates the PIN download flow.
	AllowDownloads bool      `json:"allowDownloads"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CollectionPatch carries the mutable fields of a collection. Nil fields are left unchanged.
type CollectionPatch struct {
	Name           *string
	Description    *string
	Visibility     *Visibility
	CoverPhoto     *CoverPhoto
	Tags           []string
	Design         json.RawMessage
	AllowDownloads *bool
}

// Apply merges the non-nil fields of p onto c.
func (p CollectionPatch) Apply(c *Collection) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Visibility != nil {
		c.Visibility = *p.Visibility
	}
	if p.CoverPhoto != nil {
		cover := *p.CoverPhoto
		c.CoverPhoto = &cover
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	if p.Design != nil {
		c.Design = append(json.RawMessage(nil), p.Design...)
	}
	if p.AllowDownloads != nil {
		c.AllowDownloads = *p.AllowDownloads
	}
}

// ShareLink grants gallery access to a collection through an opaque token.
type ShareLink struct {
	ID string `json:"id"`
	// AccessToken is unique and used as the external capability.
	AccessToken  string     `json:"accessToken"`
	CollectionID string     `json:"collectionId"`
	Password     string     `json:"password,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ViewCount    int        `json:"viewCount"`
	AccessCount  int        `json:"accessCount"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Expired reports whether the share has an expiry in the past.
func (s ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}
