package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const userColumns = `id, email, display_name, password_hash, role, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = NewID()
	}
	if user.Role == "" {
		user.Role = "editor"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, LOWER($2), $3, $4, $5)
		RETURNING `+userColumns,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = LOWER($1)`, email)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("read user: %w", err)
	}
	return user, nil
}

const documentColumns = `id, user_id, title, content, content_html, status, word_count, character_count,
	is_favorite, is_pinned, workspace_id, template_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		doc         Document
		workspaceID sql.NullString
		templateID  sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.Content, &doc.ContentHTML, &doc.Status,
		&doc.WordCount, &doc.CharacterCount, &doc.IsFavorite, &doc.IsPinned,
		&workspaceID, &templateID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if workspaceID.Valid {
		doc.WorkspaceID = &workspaceID.String
	}
	if templateID.Valid {
		doc.TemplateID = &templateID.String
	}
	return doc, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	doc = prepareDocument(doc)
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, user_id, title, content, content_html, status, word_count, character_count,
			is_favorite, is_pinned, workspace_id, template_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+documentColumns,
		doc.ID, doc.UserID, doc.Title, doc.Content, doc.ContentHTML, doc.Status, doc.WordCount, doc.CharacterCount,
		doc.IsFavorite, doc.IsPinned, doc.WorkspaceID, doc.TemplateID, doc.CreatedAt, doc.UpdatedAt,
	)
	created, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, userID, id string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetDocumentByID(ctx context.Context, id string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	return s.queryDocuments(ctx, "list documents",
		`SELECT `+documentColumns+` FROM documents WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
}

func (s *PostgresStore) ListAllDocuments(ctx context.Context) ([]Document, error) {
	return s.queryDocuments(ctx, "list all documents",
		`SELECT `+documentColumns+` FROM documents ORDER BY updated_at DESC`)
}

func (s *PostgresStore) SearchDocuments(ctx context.Context, userID, query string, limit int) ([]Document, error) {
	if strings.TrimSpace(query) == "" {
		return []Document{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.queryDocuments(ctx, "search documents", `
		SELECT `+documentColumns+`
		FROM documents
		WHERE user_id = $1 AND fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC, updated_at DESC
		LIMIT $3`, userID, query, limit)
}

func (s *PostgresStore) queryDocuments(ctx context.Context, op, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, userID, id string, patch DocumentPatch) (Document, error) {
	sets := make([]string, 0, 11)
	args := make([]any, 0, 13)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.ContentHTML != nil {
		add("content_html", *patch.ContentHTML)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.WordCount != nil {
		add("word_count", *patch.WordCount)
	}
	if patch.CharacterCount != nil {
		add("character_count", *patch.CharacterCount)
	}
	if patch.IsFavorite != nil {
		add("is_favorite", *patch.IsFavorite)
	}
	if patch.IsPinned != nil {
		add("is_pinned", *patch.IsPinned)
	}
	if patch.WorkspaceID != nil {
		add("workspace_id", *patch.WorkspaceID)
	}
	if patch.TemplateID != nil {
		add("template_id", *patch.TemplateID)
	}
	updatedAt := time.Now().UTC()
	if patch.UpdatedAt != nil {
		updatedAt = *patch.UpdatedAt
	}
	add("updated_at", updatedAt)

	args = append(args, id, userID)
	query := fmt.Sprintf(`UPDATE documents SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), documentColumns)

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("update document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const versionColumns = `id, document_id, user_id, version_number, content, content_html, created_at`

func scanVersion(row rowScanner) (Version, error) {
	var v Version
	err := row.Scan(&v.ID, &v.DocumentID, &v.UserID, &v.VersionNumber, &v.Content, &v.ContentHTML, &v.CreatedAt)
	return v, err
}

func (s *PostgresStore) ListVersions(ctx context.Context, userID, documentID string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id = $1 AND user_id = $2
		ORDER BY version_number DESC`, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]Version, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, userID, documentID string, number int) (Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id = $1 AND user_id = $2 AND version_number = $3`, documentID, userID, number))
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// CreateVersion locks the parent document row so concurrent snapshots of the
// same document are numbered one after the other.
func (s *PostgresStore) CreateVersion(ctx context.Context, version Version) (Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Version{}, fmt.Errorf("begin version tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lockedID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		version.DocumentID, version.UserID,
	).Scan(&lockedID)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, ErrNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("lock document: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE document_id = $1`,
		version.DocumentID,
	).Scan(&next); err != nil {
		return Version{}, fmt.Errorf("next version number: %w", err)
	}

	if version.ID == "" {
		version.ID = NewID()
	}
	version.VersionNumber = next
	created, err := scanVersion(tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (id, document_id, user_id, version_number, content, content_html)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+versionColumns,
		version.ID, version.DocumentID, version.UserID, version.VersionNumber, version.Content, version.ContentHTML,
	))
	if err != nil {
		return Version{}, fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Version{}, fmt.Errorf("commit version: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) InsertAIUsage(ctx context.Context, usage AIUsage) error {
	if usage.ID == "" {
		usage.ID = NewID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_usage (id, user_id, action_type, tokens_used, model)
		VALUES ($1, $2, $3, $4, $5)`,
		usage.ID, usage.UserID, usage.ActionType, usage.TokensUsed, usage.Model,
	)
	if err != nil {
		return fmt.Errorf("insert ai usage: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSecurityEvent(ctx context.Context, event SecurityEvent) error {
	if event.ID == "" {
		event.ID = NewID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, type, severity, user_id, ip, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Type, event.Severity, event.UserID, event.IP, event.UserAgent, event.Details, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = NewID()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, message, document_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		n.ID, n.UserID, n.Kind, n.Message, n.DocumentID,
	).Scan(&n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, message, document_id, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, notificationLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var (
			n      Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Message, &n.DocumentID, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if readAt.Valid {
			n.ReadAt = &readAt.Time
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, NOW()) WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
