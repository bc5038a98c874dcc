package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"

	DefaultTitle = "Untitled Document"
)

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ContentHTML    string    `json:"contentHtml"`
	Status         string    `json:"status"`
	WordCount      int       `json:"wordCount"`
	CharacterCount int       `json:"characterCount"`
	IsFavorite     bool      `json:"isFavorite"`
	IsPinned       bool      `json:"isPinned"`
	WorkspaceID    *string   `json:"workspaceId"`
	TemplateID     *string   `json:"templateId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// DocumentPatch is a shallow partial update. Nil fields are left untouched.
type DocumentPatch struct {
	Title          *string    `json:"title,omitempty"`
	Content        *string    `json:"content,omitempty"`
	ContentHTML    *string    `json:"contentHtml,omitempty"`
	Status         *string    `json:"status,omitempty"`
	WordCount      *int       `json:"wordCount,omitempty"`
	CharacterCount *int       `json:"characterCount,omitempty"`
	IsFavorite     *bool      `json:"isFavorite,omitempty"`
	IsPinned       *bool      `json:"isPinned,omitempty"`
	WorkspaceID    *string    `json:"workspaceId,omitempty"`
	TemplateID     *string    `json:"templateId,omitempty"`
	UpdatedAt      *time.Time `json:"-"`
}

// Apply merges the non-nil fields of p into doc.
func (p DocumentPatch) Apply(doc *Document) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.Content != nil {
		doc.Content = *p.Content
	}
	if p.ContentHTML != nil {
		doc.ContentHTML = *p.ContentHTML
	}
	if p.Status != nil {
		doc.Status = *p.Status
	}
	if p.WordCount != nil {
		doc.WordCount = *p.WordCount
	}
	if p.CharacterCount != nil {
		doc.CharacterCount = *p.CharacterCount
	}
	if p.IsFavorite != nil {
		doc.IsFavorite = *p.IsFavorite
	}
	if p.IsPinned != nil {
		doc.IsPinned = *p.IsPinned
	}
	if p.WorkspaceID != nil {
		doc.WorkspaceID = p.WorkspaceID
	}
	if p.TemplateID != nil {
		doc.TemplateID = p.TemplateID
	}
	if p.UpdatedAt != nil {
		doc.UpdatedAt = *p.UpdatedAt
	}
}

type Version struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	UserID        string    `json:"userId"`
	VersionNumber int       `json:"versionNumber"`
	Content       string    `json:"content"`
	ContentHTML   string    `json:"contentHtml"`
	CreatedAt     time.Time `json:"createdAt"`
}

type AIUsage struct {
	ID         string
	UserID     string
	ActionType string
	TokensUsed int
	Model      string
	CreatedAt  time.Time
}

type SecurityEvent struct {
	ID        string
	Type      string
	Severity  string
	UserID    string
	IP        string
	UserAgent string
	Details   string
	CreatedAt time.Time
}

type Notification struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Kind       string     `json:"kind"`
	Message    string     `json:"message"`
	DocumentID string     `json:"documentId,omitempty"`
	ReadAt     *time.Time `json:"readAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}
