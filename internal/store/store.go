package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is implemented by the Postgres and the Gorm (sqlite) backends.
// Document and version reads are scoped by owner; a row owned by someone else
// is reported as ErrNotFound.
type Store interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)

	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, userID, id string) (Document, error)
	GetDocumentByID(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context, userID string) ([]Document, error)
	ListAllDocuments(ctx context.Context) ([]Document, error)
	UpdateDocument(ctx context.Context, userID, id string, patch DocumentPatch) (Document, error)
	DeleteDocument(ctx context.Context, userID, id string) error
	SearchDocuments(ctx context.Context, userID, query string, limit int) ([]Document, error)

	ListVersions(ctx context.Context, userID, documentID string) ([]Version, error)
	GetVersion(ctx context.Context, userID, documentID string, number int) (Version, error)
	// CreateVersion assigns VersionNumber as max(existing)+1 atomically.
	CreateVersion(ctx context.Context, version Version) (Version, error)

	InsertAIUsage(ctx context.Context, usage AIUsage) error
	InsertSecurityEvent(ctx context.Context, event SecurityEvent) error
	InsertNotification(ctx context.Context, n Notification) (Notification, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// NewID returns a fresh opaque identifier for any persisted record.
func NewID() string {
	return uuid.NewString()
}

func prepareDocument(doc Document) Document {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = NewID()
	}
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = DefaultTitle
	}
	if doc.Status == "" {
		doc.Status = StatusDraft
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = doc.CreatedAt
	}
	return doc
}

func notificationLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
