package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Role         string `gorm:"not null;default:editor"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type documentRow struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index:idx_documents_user_updated,priority:1;not null"`
	Title          string `gorm:"not null"`
	Content        string
	ContentHTML    string `gorm:"column:content_html"`
	Status         string `gorm:"not null;default:draft"`
	WordCount      int
	CharacterCount int
	IsFavorite     bool
	IsPinned       bool
	WorkspaceID    *string
	TemplateID     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time `gorm:"index:idx_documents_user_updated,priority:2"`
}

func (documentRow) TableName() string { return "documents" }

type versionRow struct {
	ID            string `gorm:"primaryKey"`
	DocumentID    string `gorm:"uniqueIndex:idx_document_version;not null"`
	UserID        string `gorm:"index;not null"`
	VersionNumber int    `gorm:"uniqueIndex:idx_document_version;not null"`
	Content       string
	ContentHTML   string `gorm:"column:content_html"`
	CreatedAt     time.Time
}

func (versionRow) TableName() string { return "document_versions" }

type aiUsageRow struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	ActionType string
	TokensUsed int
	Model      string
	CreatedAt  time.Time
}

func (aiUsageRow) TableName() string { return "ai_usage" }

type securityEventRow struct {
	ID        string `gorm:"primaryKey"`
	Type      string
	Severity  string
	UserID    string
	IP        string `gorm:"column:ip"`
	UserAgent string
	Details   string
	CreatedAt time.Time `gorm:"index"`
}

func (securityEventRow) TableName() string { return "security_events" }

type notificationRow struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index"`
	Kind       string
	Message    string
	DocumentID string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

func (notificationRow) TableName() string { return "notifications" }

// GormStore is the single-node backend used with STORE_DRIVER=sqlite.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// OpenSQLite opens (creating if needed) a sqlite database file and migrates it.
func OpenSQLite(path string) (*GormStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	store := NewGormStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Migrate() error {
	if err := g.db.AutoMigrate(
		&userRow{},
		&documentRow{},
		&versionRow{},
		&aiUsageRow{},
		&securityEventRow{},
		&notificationRow{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *GormStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = NewID()
	}
	if user.Role == "" {
		user.Role = "editor"
	}
	row := userRow{
		ID:           user.ID,
		Email:        strings.ToLower(user.Email),
		DisplayName:  user.DisplayName,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return row.toUser(), nil
}

func (g *GormStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var row userRow
	if err := g.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&row).Error; err != nil {
		return User{}, notFound(err)
	}
	return row.toUser(), nil
}

func (g *GormStore) GetUserByID(ctx context.Context, id string) (User, error) {
	var row userRow
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return User{}, notFound(err)
	}
	return row.toUser(), nil
}

func (g *GormStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	row := fromDocument(prepareDocument(doc))
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return row.toDocument(), nil
}

func (g *GormStore) GetDocument(ctx context.Context, userID, id string) (Document, error) {
	var row documentRow
	if err := g.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error; err != nil {
		return Document{}, notFound(err)
	}
	return row.toDocument(), nil
}

func (g *GormStore) GetDocumentByID(ctx context.Context, id string) (Document, error) {
	var row documentRow
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return Document{}, notFound(err)
	}
	return row.toDocument(), nil
}

func (g *GormStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	var rows []documentRow
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return toDocuments(rows), nil
}

func (g *GormStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	var rows []documentRow
	if err := g.db.WithContext(ctx).Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	return toDocuments(rows), nil
}

func (g *GormStore) SearchDocuments(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Document{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	var rows []documentRow
	err := g.db.WithContext(ctx).
		Where("user_id = ? AND (LOWER(title) LIKE ? OR LOWER(content) LIKE ?)", userID, pattern, pattern).
		Order("updated_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return toDocuments(rows), nil
}

func (g *GormStore) UpdateDocument(ctx context.Context, userID, id string, patch DocumentPatch) (Document, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.ContentHTML != nil {
		updates["content_html"] = *patch.ContentHTML
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.WordCount != nil {
		updates["word_count"] = *patch.WordCount
	}
	if patch.CharacterCount != nil {
		updates["character_count"] = *patch.CharacterCount
	}
	if patch.IsFavorite != nil {
		updates["is_favorite"] = *patch.IsFavorite
	}
	if patch.IsPinned != nil {
		updates["is_pinned"] = *patch.IsPinned
	}
	if patch.WorkspaceID != nil {
		updates["workspace_id"] = *patch.WorkspaceID
	}
	if patch.TemplateID != nil {
		updates["template_id"] = *patch.TemplateID
	}
	if patch.UpdatedAt != nil {
		updates["updated_at"] = *patch.UpdatedAt
	} else {
		updates["updated_at"] = time.Now().UTC()
	}

	var row documentRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&documentRow{}).Where("id = ? AND user_id = ?", id, userID).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).First(&row).Error
	})
	if err != nil {
		return Document{}, notFound(err)
	}
	return row.toDocument(), nil
}

func (g *GormStore) DeleteDocument(ctx context.Context, userID, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&documentRow{})
		if result.Error != nil {
			return fmt.Errorf("delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("document_id = ?", id).Delete(&versionRow{}).Error; err != nil {
			return fmt.Errorf("delete document versions: %w", err)
		}
		return nil
	})
}

func (g *GormStore) ListVersions(ctx context.Context, userID, documentID string) ([]Version, error) {
	var rows []versionRow
	err := g.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("version_number desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	items := make([]Version, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toVersion())
	}
	return items, nil
}

func (g *GormStore) GetVersion(ctx context.Context, userID, documentID string, number int) (Version, error) {
	var row versionRow
	err := g.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ? AND version_number = ?", documentID, userID, number).
		First(&row).Error
	if err != nil {
		return Version{}, notFound(err)
	}
	return row.toVersion(), nil
}

func (g *GormStore) CreateVersion(ctx context.Context, version Version) (Version, error) {
	var created versionRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&documentRow{}).
			Where("id = ? AND user_id = ?", version.DocumentID, version.UserID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("lookup document: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}

		var current struct{ Max int }
		if err := tx.Model(&versionRow{}).
			Select("COALESCE(MAX(version_number), 0) AS max").
			Where("document_id = ?", version.DocumentID).
			Scan(&current).Error; err != nil {
			return fmt.Errorf("next version number: %w", err)
		}

		created = versionRow{
			ID:            version.ID,
			DocumentID:    version.DocumentID,
			UserID:        version.UserID,
			VersionNumber: current.Max + 1,
			Content:       version.Content,
			ContentHTML:   version.ContentHTML,
			CreatedAt:     time.Now().UTC(),
		}
		if created.ID == "" {
			created.ID = NewID()
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return Version{}, err
	}
	return created.toVersion(), nil
}

func (g *GormStore) InsertAIUsage(ctx context.Context, usage AIUsage) error {
	row := aiUsageRow{
		ID:         usage.ID,
		UserID:     usage.UserID,
		ActionType: usage.ActionType,
		TokensUsed: usage.TokensUsed,
		Model:      usage.Model,
	}
	if row.ID == "" {
		row.ID = NewID()
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert ai usage: %w", err)
	}
	return nil
}

func (g *GormStore) InsertSecurityEvent(ctx context.Context, event SecurityEvent) error {
	row := securityEventRow{
		ID:        event.ID,
		Type:      event.Type,
		Severity:  event.Severity,
		UserID:    event.UserID,
		IP:        event.IP,
		UserAgent: event.UserAgent,
		Details:   event.Details,
		CreatedAt: event.CreatedAt,
	}
	if row.ID == "" {
		row.ID = NewID()
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (g *GormStore) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	row := notificationRow{
		ID:         n.ID,
		UserID:     n.UserID,
		Kind:       n.Kind,
		Message:    n.Message,
		DocumentID: n.DocumentID,
	}
	if row.ID == "" {
		row.ID = NewID()
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return row.toNotification(), nil
}

func (g *GormStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	var rows []notificationRow
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(notificationLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	items := make([]Notification, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toNotification())
	}
	return items, nil
}

func (g *GormStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	result := g.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", gorm.Expr("COALESCE(read_at, ?)", time.Now().UTC()))
	if result.Error != nil {
		return fmt.Errorf("mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r userRow) toUser() User {
	return User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromDocument(doc Document) documentRow {
	return documentRow{
		ID:             doc.ID,
		UserID:         doc.UserID,
		Title:          doc.Title,
		Content:        doc.Content,
		ContentHTML:    doc.ContentHTML,
		Status:         doc.Status,
		WordCount:      doc.WordCount,
		CharacterCount: doc.CharacterCount,
		IsFavorite:     doc.IsFavorite,
		IsPinned:       doc.IsPinned,
		WorkspaceID:    doc.WorkspaceID,
		TemplateID:     doc.TemplateID,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func (r documentRow) toDocument() Document {
	return Document{
		ID:             r.ID,
		UserID:         r.UserID,
		Title:          r.Title,
		Content:        r.Content,
		ContentHTML:    r.ContentHTML,
		Status:         r.Status,
		WordCount:      r.WordCount,
		CharacterCount: r.CharacterCount,
		IsFavorite:     r.IsFavorite,
		IsPinned:       r.IsPinned,
		WorkspaceID:    r.WorkspaceID,
		TemplateID:     r.TemplateID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toDocuments(rows []documentRow) []Document {
	items := make([]Document, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDocument())
	}
	return items
}

func (r versionRow) toVersion() Version {
	return Version{
		ID:            r.ID,
		DocumentID:    r.DocumentID,
		UserID:        r.UserID,
		VersionNumber: r.VersionNumber,
		Content:       r.Content,
		ContentHTML:   r.ContentHTML,
		CreatedAt:     r.CreatedAt,
	}
}

func (r notificationRow) toNotification() Notification {
	return Notification{
		ID:         r.ID,
		UserID:     r.UserID,
		Kind:       r.Kind,
		Message:    r.Message,
		DocumentID: r.DocumentID,
		ReadAt:     r.ReadAt,
		CreatedAt:  r.CreatedAt,
	}
}
